package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dwizi/telegram-relay/internal/heartbeat"
	"github.com/dwizi/telegram-relay/internal/relay"
	"github.com/dwizi/telegram-relay/internal/store"
	"github.com/robfig/cron/v3"
)

const (
	componentName = "scheduler"
	digestEvent   = "daily_digest"
	defaultWindow = 24 * time.Hour
	defaultBeat   = 30 * time.Second
)

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

type Store interface {
	CountDeliveriesSince(ctx context.Context, since time.Time) ([]store.OutcomeCount, error)
	LastDigestRun(ctx context.Context) (store.DigestRun, bool, error)
	RecordDigestRun(ctx context.Context, windowStart, windowEnd time.Time, deliveries int, sent bool) (store.DigestRun, error)
}

type Broadcaster interface {
	Broadcast(ctx context.Context, source, event, text string) relay.Result
}

// ParseSchedule validates a five-field cron expression or descriptor.
func ParseSchedule(expr string) (cron.Schedule, error) {
	expr = strings.Join(strings.Fields(expr), " ")
	if expr == "" {
		return nil, fmt.Errorf("cron expression is empty")
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression: %w", err)
	}
	return schedule, nil
}

type Service struct {
	schedule    cron.Schedule
	store       Store
	broadcaster Broadcaster
	logger      *slog.Logger
	reporter    heartbeat.Reporter
	beatEvery   time.Duration
	now         func() time.Time
}

// New builds the digest scheduler. An empty expression yields a disabled
// service whose Start only waits for cancellation.
func New(cronExpr string, storeRef Store, broadcaster Broadcaster, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	service := &Service{
		store:       storeRef,
		broadcaster: broadcaster,
		logger:      logger.With("component", componentName),
		beatEvery:   defaultBeat,
		now:         func() time.Time { return time.Now().UTC() },
	}
	if strings.TrimSpace(cronExpr) == "" {
		return service, nil
	}
	schedule, err := ParseSchedule(cronExpr)
	if err != nil {
		return nil, err
	}
	service.schedule = schedule
	return service, nil
}

// SetHeartbeatReporter reports the scheduler to reporter, beating every interval
// while it waits for the next run.
func (s *Service) SetHeartbeatReporter(reporter heartbeat.Reporter, interval time.Duration) {
	s.reporter = reporter
	if interval > 0 {
		s.beatEvery = interval
	}
}

func (s *Service) Enabled() bool {
	return s.schedule != nil && s.store != nil && s.broadcaster != nil
}

func (s *Service) Start(ctx context.Context) error {
	if !s.Enabled() {
		if s.reporter != nil {
			s.reporter.Disabled(componentName, "digest schedule not configured")
		}
		<-ctx.Done()
		return nil
	}
	if s.reporter != nil {
		s.reporter.Starting(componentName, "started")
	}
	for {
		next := s.schedule.Next(s.now())
		s.logger.Info("next digest scheduled", "next_run", next.Format(time.RFC3339))
		if s.reporter != nil {
			s.reporter.Beat(componentName, "waiting for "+next.Format(time.RFC3339))
		}
		if !s.waitUntil(ctx, next) {
			if s.reporter != nil {
				s.reporter.Stopped(componentName, "stopped")
			}
			s.logger.Info("scheduler stopped")
			return nil
		}
		if _, err := s.RunDigest(ctx); err != nil {
			if s.reporter != nil {
				s.reporter.Degrade(componentName, "digest run failed", err)
			}
			s.logger.Error("digest run failed", "error", err)
		}
	}
}

// waitUntil blocks until next, beating while idle. It reports false when ctx ends first.
func (s *Service) waitUntil(ctx context.Context, next time.Time) bool {
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()
	ticker := time.NewTicker(s.beatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		case <-ticker.C:
			if s.reporter != nil {
				s.reporter.Beat(componentName, "waiting for "+next.Format(time.RFC3339))
			}
		}
	}
}

// RunDigest summarizes deliveries since the previous run and broadcasts the
// summary when anything was relayed.
func (s *Service) RunDigest(ctx context.Context) (store.DigestRun, error) {
	if s.store == nil || s.broadcaster == nil {
		return store.DigestRun{}, fmt.Errorf("digest dependencies missing")
	}
	windowEnd := s.now()
	windowStart := windowEnd.Add(-defaultWindow)
	last, ok, err := s.store.LastDigestRun(ctx)
	if err != nil {
		return store.DigestRun{}, err
	}
	if ok && last.WindowEnd.After(windowStart) {
		windowStart = last.WindowEnd
	}

	counts, err := s.store.CountDeliveriesSince(ctx, windowStart)
	if err != nil {
		return store.DigestRun{}, err
	}
	counts = withoutDigests(counts)
	total := 0
	for _, count := range counts {
		total += count.Count
	}

	sent := false
	if total > 0 {
		result := s.broadcaster.Broadcast(ctx, relay.SourceDigest, digestEvent, FormatDigest(windowStart, windowEnd, counts))
		sent = result.Outcome == relay.OutcomeSent
		if !sent {
			s.logger.Warn("digest not delivered", "outcome", string(result.Outcome), "error", result.Err)
		}
	}
	run, err := s.store.RecordDigestRun(ctx, windowStart, windowEnd, total, sent)
	if err != nil {
		return store.DigestRun{}, err
	}
	s.logger.Info("digest run completed", "deliveries", total, "sent", sent)
	return run, nil
}

// FormatDigest renders per-source outcome counts for the window.
func FormatDigest(windowStart, windowEnd time.Time, counts []store.OutcomeCount) string {
	bySource := map[string][]store.OutcomeCount{}
	sources := []string{}
	for _, count := range counts {
		if _, ok := bySource[count.Source]; !ok {
			sources = append(sources, count.Source)
		}
		bySource[count.Source] = append(bySource[count.Source], count)
	}
	sort.Strings(sources)

	lines := []string{
		"🗒 Relay digest",
		fmt.Sprintf("%s to %s", windowStart.UTC().Format("2006-01-02 15:04"), windowEnd.UTC().Format("2006-01-02 15:04 MST")),
	}
	for _, source := range sources {
		parts := []string{}
		for _, count := range bySource[source] {
			parts = append(parts, fmt.Sprintf("%s %d", count.Outcome, count.Count))
		}
		lines = append(lines, fmt.Sprintf("%s: %s", source, strings.Join(parts, ", ")))
	}
	return strings.Join(lines, "\n")
}

func withoutDigests(counts []store.OutcomeCount) []store.OutcomeCount {
	filtered := make([]store.OutcomeCount, 0, len(counts))
	for _, count := range counts {
		if count.Source == relay.SourceDigest {
			continue
		}
		filtered = append(filtered, count)
	}
	return filtered
}
