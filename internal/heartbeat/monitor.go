package heartbeat

import (
	"context"
	"log/slog"
	"time"
)

type Transition struct {
	Component string `json:"component"`
	From      State  `json:"from"`
	To        State  `json:"to"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

type MonitorConfig struct {
	Interval     time.Duration
	StaleAfter   time.Duration
	Logger       *slog.Logger
	OnTransition func(context.Context, Transition)
}

// Monitor samples the registry on an interval and logs component state changes.
type Monitor struct {
	registry *Registry
	cfg      MonitorConfig
	previous map[string]State
}

func NewMonitor(registry *Registry, cfg MonitorConfig) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Monitor{
		registry: registry,
		cfg:      cfg,
		previous: map[string]State{},
	}
}

func (m *Monitor) Start(ctx context.Context) error {
	if m.registry == nil {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	m.cfg.Logger.Info("heartbeat monitor started", "interval", m.cfg.Interval.String(), "stale_after", m.cfg.StaleAfter.String())

	for {
		m.sample(ctx)
		select {
		case <-ctx.Done():
			m.cfg.Logger.Info("heartbeat monitor stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (m *Monitor) sample(ctx context.Context) {
	snapshot := m.registry.Snapshot(m.cfg.StaleAfter)
	for _, item := range snapshot.Components {
		before, seen := m.previous[item.Name]
		m.previous[item.Name] = item.State
		if !seen || before == item.State {
			continue
		}
		transition := Transition{
			Component: item.Name,
			From:      before,
			To:        item.State,
			Message:   item.Message,
			Error:     item.Error,
		}
		level := slog.LevelInfo
		if item.State == StateDegraded || item.State == StateStale {
			level = slog.LevelWarn
		}
		m.cfg.Logger.Log(ctx, level, "component state changed",
			"component", transition.Component,
			"from", string(transition.From),
			"to", string(transition.To),
			"error", transition.Error,
		)
		if m.cfg.OnTransition != nil {
			m.cfg.OnTransition(ctx, transition)
		}
	}
}
