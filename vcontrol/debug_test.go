// File: vcontrol/debug_test.go
// License: Apache-2.0

package vcontrol_test

import (
	"testing"

	"github.com/vial-run/vial/vcontrol"
)

func TestProbesDumpRunsEveryRegisteredProbe(t *testing.T) {
	p := vcontrol.NewProbes()
	p.Register("workers", func() any { return 4 })
	p.Register("queue_depth", func() any { return 0 })

	dump := p.Dump()
	if len(dump) != 2 {
		t.Fatalf("Dump returned %d entries, want 2", len(dump))
	}
	if dump["workers"].(int) != 4 {
		t.Errorf("dump[\"workers\"] = %v, want 4", dump["workers"])
	}
}

func TestProbesRegisterReplacesExisting(t *testing.T) {
	p := vcontrol.NewProbes()
	p.Register("workers", func() any { return 4 })
	p.Register("workers", func() any { return 8 })

	dump := p.Dump()
	if dump["workers"].(int) != 8 {
		t.Fatalf("dump[\"workers\"] = %v, want 8 after re-registration", dump["workers"])
	}
}

func TestProbesDumpOnEmptyRegistry(t *testing.T) {
	p := vcontrol.NewProbes()
	dump := p.Dump()
	if len(dump) != 0 {
		t.Fatalf("Dump on empty registry returned %d entries, want 0", len(dump))
	}
}
