package app

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dwizi/telegram-relay/internal/heartbeat"
	"github.com/dwizi/telegram-relay/internal/relay"
)

const heartbeatSource = "heartbeat"

type transitionBroadcaster interface {
	Broadcast(ctx context.Context, source, event, text string) relay.Result
}

// heartbeatNotifier tells relay targets when a component degrades or recovers.
type heartbeatNotifier struct {
	broadcaster transitionBroadcaster
	logger      *slog.Logger
}

func newHeartbeatNotifier(broadcaster transitionBroadcaster, logger *slog.Logger) *heartbeatNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &heartbeatNotifier{broadcaster: broadcaster, logger: logger}
}

func (n *heartbeatNotifier) HandleTransition(ctx context.Context, transition heartbeat.Transition) {
	if n == nil || n.broadcaster == nil {
		return
	}
	eventType := heartbeatTransitionType(transition)
	if eventType == "" {
		return
	}
	result := n.broadcaster.Broadcast(ctx, heartbeatSource, eventType, buildHeartbeatTransitionMessage(eventType, transition))
	if result.Outcome != relay.OutcomeSent {
		n.logger.Warn("heartbeat notice not delivered",
			"component", transition.Component,
			"outcome", string(result.Outcome),
			"error", result.Err,
		)
	}
}

func isDegraded(state heartbeat.State) bool {
	return state == heartbeat.StateDegraded || state == heartbeat.StateStale
}

func heartbeatTransitionType(transition heartbeat.Transition) string {
	switch {
	case !isDegraded(transition.From) && isDegraded(transition.To):
		return "degraded"
	case isDegraded(transition.From) && transition.To == heartbeat.StateHealthy:
		return "recovered"
	default:
		return ""
	}
}

func buildHeartbeatTransitionMessage(eventType string, transition heartbeat.Transition) string {
	title := "✅ Component recovered"
	if eventType == "degraded" {
		title = "⚠️ Component degraded"
	}
	lines := []string{
		title,
		"Component: " + strings.TrimSpace(transition.Component),
		"State: " + string(transition.From) + " -> " + string(transition.To),
	}
	if message := strings.TrimSpace(transition.Message); message != "" {
		lines = append(lines, "Detail: "+truncateSingleLine(message, 300))
	}
	if errorText := strings.TrimSpace(transition.Error); errorText != "" {
		lines = append(lines, "Error: "+truncateSingleLine(errorText, 300))
	}
	lines = append(lines, "At: "+time.Now().UTC().Format(time.RFC3339))
	return strings.Join(lines, "\n")
}

func truncateSingleLine(value string, limit int) string {
	value = strings.Join(strings.Fields(value), " ")
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit]) + "…"
}
