package heartbeat

import (
	"errors"
	"testing"
	"time"
)

func TestSnapshotMarksStaleComponent(t *testing.T) {
	registry := NewRegistry()
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	registry.now = func() time.Time { return clock }
	registry.Beat("dispatch", "ok")

	clock = clock.Add(3 * time.Minute)
	snapshot := registry.Snapshot(60 * time.Second)
	if snapshot.Overall != StateDegraded {
		t.Fatalf("expected degraded overall state, got %s", snapshot.Overall)
	}
	if len(snapshot.Components) != 1 {
		t.Fatalf("expected one component, got %d", len(snapshot.Components))
	}
	if snapshot.Components[0].State != StateStale || snapshot.Components[0].Reported != StateHealthy {
		t.Fatalf("expected stale healthy component, got %+v", snapshot.Components[0])
	}
	if snapshot.Healthy() {
		t.Fatal("stale snapshot must not be healthy")
	}
}

func TestSnapshotIdleForInactiveComponents(t *testing.T) {
	registry := NewRegistry()
	registry.Disabled("digest", "no schedule")
	registry.Stopped("connector:telegram", "stopped")

	snapshot := registry.Snapshot(60 * time.Second)
	if snapshot.Overall != OverallIdle {
		t.Fatalf("expected idle overall state, got %s", snapshot.Overall)
	}
}

func TestSnapshotSortedAndDegradeCarriesError(t *testing.T) {
	registry := NewRegistry()
	registry.Beat("relay-api", "serving")
	registry.Degrade("connector:telegram", "poll failed", errors.New("connection reset"))

	snapshot := registry.Snapshot(0)
	if snapshot.Components[0].Name != "connector:telegram" || snapshot.Components[1].Name != "relay-api" {
		t.Fatalf("expected components sorted by name, got %+v", snapshot.Components)
	}
	if snapshot.Components[0].Error != "connection reset" {
		t.Fatalf("expected degrade error, got %q", snapshot.Components[0].Error)
	}
	if snapshot.Overall != StateDegraded {
		t.Fatalf("expected degraded overall, got %s", snapshot.Overall)
	}

	registry.Beat("connector:telegram", "recovered")
	snapshot = registry.Snapshot(0)
	if snapshot.Overall != StateHealthy || snapshot.Components[0].Error != "" {
		t.Fatalf("expected recovery to clear error, got %+v", snapshot)
	}
}

func TestSnapshotEmptyIsUnknown(t *testing.T) {
	if NewRegistry().Snapshot(time.Minute).Overall != OverallUnknown {
		t.Fatal("expected unknown overall state for empty registry")
	}
}
