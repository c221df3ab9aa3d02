// Package heartbeat tracks the liveness of the runtime's long-running components.
//
// Components report state changes and periodic beats to a Registry. A Snapshot
// marks components whose last beat is older than the stale window, and a Monitor
// logs every state transition.
package heartbeat

import (
	"sort"
	"strings"
	"sync"
	"time"
)

type State string

const (
	StateStarting State = "starting"
	StateHealthy  State = "healthy"
	StateDegraded State = "degraded"
	StateDisabled State = "disabled"
	StateStopped  State = "stopped"
	StateStale    State = "stale"

	OverallUnknown State = "unknown"
	OverallIdle    State = "idle"
)

type Reporter interface {
	Starting(component, message string)
	Beat(component, message string)
	Degrade(component, message string, err error)
	Disabled(component, message string)
	Stopped(component, message string)
}

type ComponentStatus struct {
	Name           string `json:"name"`
	State          State  `json:"state"`
	Reported       State  `json:"reported_state"`
	Message        string `json:"message,omitempty"`
	Error          string `json:"error,omitempty"`
	LastBeatAtUnix int64  `json:"last_beat_at_unix,omitempty"`
	UpdatedAtUnix  int64  `json:"updated_at_unix"`
}

type Snapshot struct {
	GeneratedAtUnix int64             `json:"generated_at_unix"`
	Overall         State             `json:"overall"`
	Components      []ComponentStatus `json:"components"`
}

type component struct {
	state     State
	message   string
	lastError string
	lastBeat  time.Time
	updated   time.Time
}

type Registry struct {
	mu         sync.RWMutex
	now        func() time.Time
	components map[string]component
}

func NewRegistry() *Registry {
	return &Registry{
		now:        func() time.Time { return time.Now().UTC() },
		components: map[string]component{},
	}
}

func (r *Registry) Starting(name, message string) {
	r.report(name, StateStarting, message, nil)
}

func (r *Registry) Beat(name, message string) {
	r.report(name, StateHealthy, message, nil)
}

func (r *Registry) Degrade(name, message string, err error) {
	r.report(name, StateDegraded, message, err)
}

func (r *Registry) Disabled(name, message string) {
	r.report(name, StateDisabled, message, nil)
}

func (r *Registry) Stopped(name, message string) {
	r.report(name, StateStopped, message, nil)
}

func (r *Registry) report(name string, state State, message string, err error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return
	}
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := r.components[name]
	entry.state = state
	entry.message = strings.TrimSpace(message)
	entry.lastError = ""
	if err != nil {
		entry.lastError = strings.TrimSpace(err.Error())
	}
	entry.updated = now
	if state == StateHealthy || entry.lastBeat.IsZero() {
		entry.lastBeat = now
	}
	r.components[name] = entry
}

// Snapshot reports every component. Starting or healthy components that have not
// beaten within staleAfter are reported stale; staleAfter <= 0 disables the check.
func (r *Registry) Snapshot(staleAfter time.Duration) Snapshot {
	now := r.now()
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]ComponentStatus, 0, len(r.components))
	for name, entry := range r.components {
		status := ComponentStatus{
			Name:           name,
			State:          entry.state,
			Reported:       entry.state,
			Message:        entry.message,
			Error:          entry.lastError,
			LastBeatAtUnix: entry.lastBeat.Unix(),
			UpdatedAtUnix:  entry.updated.Unix(),
		}
		live := entry.state == StateHealthy || entry.state == StateStarting
		if staleAfter > 0 && live && now.Sub(entry.lastBeat) > staleAfter {
			status.State = StateStale
		}
		results = append(results, status)
	}
	sort.Slice(results, func(left, right int) bool {
		return results[left].Name < results[right].Name
	})

	return Snapshot{
		GeneratedAtUnix: now.Unix(),
		Overall:         overall(results),
		Components:      results,
	}
}

// Healthy reports whether the overall state is healthy or still starting.
func (s Snapshot) Healthy() bool {
	return s.Overall == StateHealthy || s.Overall == StateStarting
}

func overall(items []ComponentStatus) State {
	if len(items) == 0 {
		return OverallUnknown
	}
	starting, healthy := false, false
	for _, item := range items {
		switch item.State {
		case StateDegraded, StateStale:
			return StateDegraded
		case StateStarting:
			starting = true
		case StateHealthy:
			healthy = true
		}
	}
	switch {
	case starting:
		return StateStarting
	case healthy:
		return StateHealthy
	default:
		return OverallIdle
	}
}
