package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrQueueFull = errors.New("dispatch queue is full")
	ErrStopped   = errors.New("dispatch pool stopped")
)

// Job is one unit of work, typically the handling of a single chat update.
type Job struct {
	ID       string
	Kind     string
	ChatID   int64
	Run      func(ctx context.Context)
	QueuedAt time.Time
}

// Pool runs jobs on a fixed number of workers. Jobs run on a context detached from
// the pool's lifetime and bounded by the job timeout, so stopping the pool drains
// queued and in-flight jobs instead of cancelling them.
type Pool struct {
	workers    int
	jobTimeout time.Duration
	jobs       chan Job
	logger     *slog.Logger

	mu        sync.RWMutex
	stopped   bool
	startOnce sync.Once
}

func New(workers int, jobTimeout time.Duration, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		workers:    workers,
		jobTimeout: jobTimeout,
		jobs:       make(chan Job, workers*50),
		logger:     logger,
	}
}

// Start runs the workers until ctx is done, then waits for the queue to drain.
func (p *Pool) Start(ctx context.Context) error {
	var workers sync.WaitGroup
	p.startOnce.Do(func() {
		for index := 0; index < p.workers; index++ {
			workers.Add(1)
			go func(workerID int) {
				defer workers.Done()
				p.worker(ctx, workerID)
			}(index + 1)
		}
	})

	<-ctx.Done()
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.jobs)
	}
	pending := len(p.jobs)
	p.mu.Unlock()
	if pending > 0 {
		p.logger.Info("draining dispatch queue", "pending", pending)
	}
	workers.Wait()
	return nil
}

func (p *Pool) Submit(job Job) (Job, error) {
	if job.Run == nil {
		return Job{}, errors.New("dispatch job has no run function")
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.QueuedAt.IsZero() {
		job.QueuedAt = time.Now().UTC()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return Job{}, ErrStopped
	}
	select {
	case p.jobs <- job:
		p.logger.Debug("job queued", "job_id", job.ID, "kind", job.Kind, "chat_id", job.ChatID)
		return job, nil
	default:
		return Job{}, ErrQueueFull
	}
}

func (p *Pool) Pending() int {
	return len(p.jobs)
}

func (p *Pool) worker(ctx context.Context, workerID int) {
	p.logger.Debug("worker started", "worker_id", workerID)
	for job := range p.jobs {
		p.process(ctx, workerID, job)
	}
	p.logger.Debug("worker stopped", "worker_id", workerID)
}

func (p *Pool) process(ctx context.Context, workerID int, job Job) {
	jobCtx := context.WithoutCancel(ctx)
	if p.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(jobCtx, p.jobTimeout)
		defer cancel()
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			p.logger.Error("job panicked", "worker_id", workerID, "job_id", job.ID, "kind", job.Kind, "panic", recovered)
		}
	}()

	started := time.Now()
	job.Run(jobCtx)
	p.logger.Debug("job finished",
		"worker_id", workerID,
		"job_id", job.ID,
		"kind", job.Kind,
		"queued_ms", started.Sub(job.QueuedAt).Milliseconds(),
		"duration_ms", time.Since(started).Milliseconds(),
	)
}
