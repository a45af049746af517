// File: vcontrol/metrics_test.go
// License: Apache-2.0

package vcontrol_test

import (
	"testing"

	"github.com/vial-run/vial/vcontrol"
)

func TestMetricsSnapshotIncludesBuiltinCounters(t *testing.T) {
	m := vcontrol.NewMetrics()
	snap := m.Snapshot()

	for _, key := range []string{"tasks_spawned", "tasks_completed", "tasks_panicked", "io_registered"} {
		v, ok := snap[key]
		if !ok {
			t.Fatalf("Snapshot missing built-in key %q", key)
		}
		if v.(int64) != 0 {
			t.Fatalf("Snapshot[%q] = %v, want 0 before any increment", key, v)
		}
	}
}

func TestMetricsIncrementsAreReflectedInSnapshot(t *testing.T) {
	m := vcontrol.NewMetrics()
	m.IncTasksSpawned()
	m.IncTasksSpawned()
	m.IncTasksCompleted()
	m.IncTasksPanicked()
	m.IncIORegistered()

	snap := m.Snapshot()
	if snap["tasks_spawned"].(int64) != 2 {
		t.Errorf("tasks_spawned = %v, want 2", snap["tasks_spawned"])
	}
	if snap["tasks_completed"].(int64) != 1 {
		t.Errorf("tasks_completed = %v, want 1", snap["tasks_completed"])
	}
	if snap["tasks_panicked"].(int64) != 1 {
		t.Errorf("tasks_panicked = %v, want 1", snap["tasks_panicked"])
	}
	if snap["io_registered"].(int64) != 1 {
		t.Errorf("io_registered = %v, want 1", snap["io_registered"])
	}
}

func TestMetricsSetGauge(t *testing.T) {
	m := vcontrol.NewMetrics()
	m.Set("global_queue_depth", 12)

	snap := m.Snapshot()
	if snap["global_queue_depth"].(int) != 12 {
		t.Fatalf("Snapshot[\"global_queue_depth\"] = %v, want 12", snap["global_queue_depth"])
	}
}
