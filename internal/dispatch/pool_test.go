package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func newTestPool(workers int, timeout time.Duration) *Pool {
	return New(workers, timeout, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSubmitAssignsDefaults(t *testing.T) {
	pool := newTestPool(1, 0)
	job, err := pool.Submit(Job{Kind: "update", Run: func(ctx context.Context) {}})
	if err != nil {
		t.Fatalf("submit returned error: %v", err)
	}
	if job.ID == "" {
		t.Fatal("expected generated job ID")
	}
	if job.QueuedAt.IsZero() {
		t.Fatal("expected queued timestamp")
	}
	if pool.Pending() != 1 {
		t.Fatalf("expected one pending job, got %d", pool.Pending())
	}
}

func TestSubmitQueueFull(t *testing.T) {
	pool := newTestPool(1, 0)
	for index := 0; index < 50; index++ {
		if _, err := pool.Submit(Job{Run: func(ctx context.Context) {}}); err != nil {
			t.Fatalf("unexpected submit error before queue full: %v", err)
		}
	}
	if _, err := pool.Submit(Job{Run: func(ctx context.Context) {}}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestSubmitRequiresRun(t *testing.T) {
	pool := newTestPool(1, 0)
	if _, err := pool.Submit(Job{}); err == nil {
		t.Fatal("expected error for job without run function")
	}
}

func TestStartDrainsQueuedJobsOnCancel(t *testing.T) {
	pool := newTestPool(2, time.Second)
	var completed atomic.Int32
	var cancelledInside atomic.Int32

	for index := 0; index < 10; index++ {
		if _, err := pool.Submit(Job{Run: func(ctx context.Context) {
			time.Sleep(5 * time.Millisecond)
			if ctx.Err() != nil {
				cancelledInside.Add(1)
			}
			completed.Add(1)
		}}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	go func() {
		_ = pool.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not finish draining")
	}
	if completed.Load() != 10 {
		t.Fatalf("expected all queued jobs to run, got %d", completed.Load())
	}
	if cancelledInside.Load() != 0 {
		t.Fatalf("jobs must not observe pool cancellation, %d did", cancelledInside.Load())
	}

	if _, err := pool.Submit(Job{Run: func(ctx context.Context) {}}); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped after shutdown, got %v", err)
	}
}

func TestWorkerRecoversPanics(t *testing.T) {
	pool := newTestPool(1, 0)
	ran := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = pool.Start(ctx)
		close(done)
	}()

	if _, err := pool.Submit(Job{Kind: "boom", Run: func(ctx context.Context) { panic("handler exploded") }}); err != nil {
		t.Fatalf("submit panicking job: %v", err)
	}
	if _, err := pool.Submit(Job{Run: func(ctx context.Context) { close(ran) }}); err != nil {
		t.Fatalf("submit follow-up job: %v", err)
	}

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive the panic")
	}
	cancel()
	<-done
}

func TestJobTimeoutBoundsContext(t *testing.T) {
	pool := newTestPool(1, 20*time.Millisecond)
	result := make(chan error, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = pool.Start(ctx)
	}()

	if _, err := pool.Submit(Job{Run: func(ctx context.Context) {
		<-ctx.Done()
		result <- ctx.Err()
	}}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case err := <-result:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("job timeout was not applied")
	}
}
