// File: awaitable_test.go
// License: Apache-2.0

package vial_test

import (
	"os"
	"testing"
	"time"

	"github.com/vial-run/vial"
)

// TestWaitForReadSkipsSuspensionWhenAlreadyReady exercises the fast path in
// waitForIO: a descriptor that is already readable must not suspend the
// task at all. The scheduler here is built with no reactor, so if the
// fast path did not fire, the task would park on BlockedOnIO and never be
// resumed — this test would then time out instead of completing.
func TestWaitForReadSkipsSuspensionWhenAlreadyReady(t *testing.T) {
	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe() error: %v", err)
	}
	defer pr.Close()
	defer pw.Close()

	if _, err := pw.Write([]byte("ready")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	sched, err := vial.NewScheduler(1, nil)
	if err != nil {
		t.Fatalf("NewScheduler() error: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	done := make(chan vial.Result[int], 1)
	go func() {
		done <- vial.SpawnRoot(sched, func(ctx *vial.Context) vial.Result[int] {
			vial.WaitForRead(ctx, int(pr.Fd()))
			return vial.Ok(1)
		})
	}()

	select {
	case result := <-done:
		if result.Err != nil {
			t.Fatalf("unexpected error: %v", result.Err)
		}
	case <-time.After(time.Second):
		t.Fatal("task never completed; fast path likely did not fire")
	}
}
