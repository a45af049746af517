// File: task_test.go
// License: Apache-2.0

package vial_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vial-run/vial"
)

func TestSpawnRootReturnsValue(t *testing.T) {
	sched, err := vial.NewScheduler(2, nil)
	if err != nil {
		t.Fatalf("NewScheduler() error: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	result := vial.SpawnRoot(sched, func(ctx *vial.Context) vial.Result[int] {
		return vial.Ok(42)
	})
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.Value != 42 {
		t.Errorf("Value = %d, want 42", result.Value)
	}
}

func TestAwaitPropagatesChildResult(t *testing.T) {
	sched, err := vial.NewScheduler(2, nil)
	if err != nil {
		t.Fatalf("NewScheduler() error: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	result := vial.SpawnRoot(sched, func(ctx *vial.Context) vial.Result[int] {
		child := vial.NewTask(func(ctx *vial.Context) vial.Result[int] {
			return vial.Ok(7)
		})
		childResult := vial.Await(ctx, child)
		if childResult.Err != nil {
			return vial.Failed[int](childResult.Err)
		}
		return vial.Ok(childResult.Value * 6)
	})
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.Value != 42 {
		t.Errorf("Value = %d, want 42", result.Value)
	}
}

func TestNestedAwait(t *testing.T) {
	sched, err := vial.NewScheduler(4, nil)
	if err != nil {
		t.Fatalf("NewScheduler() error: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	leaf := func(n int) vial.Operation[int] {
		return func(ctx *vial.Context) vial.Result[int] {
			return vial.Ok(n)
		}
	}

	result := vial.SpawnRoot(sched, func(ctx *vial.Context) vial.Result[int] {
		a := vial.Await(ctx, vial.NewTask(leaf(1)))
		b := vial.Await(ctx, vial.NewTask(leaf(2)))
		c := vial.Await(ctx, vial.NewTask(func(ctx *vial.Context) vial.Result[int] {
			inner := vial.Await(ctx, vial.NewTask(leaf(3)))
			return vial.Ok(inner.Value)
		}))
		return vial.Ok(a.Value + b.Value + c.Value)
	})
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.Value != 6 {
		t.Errorf("Value = %d, want 6", result.Value)
	}
}

func TestTaskPanicBecomesError(t *testing.T) {
	sched, err := vial.NewScheduler(1, nil)
	if err != nil {
		t.Fatalf("NewScheduler() error: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	result := vial.SpawnRoot(sched, func(ctx *vial.Context) vial.Result[int] {
		panic("boom")
	})
	if result.Err == nil {
		t.Fatal("expected an error from a panicking task body")
	}
	if !errors.Is(result.Err, vial.ErrPanicked) {
		t.Errorf("error = %v, want wrapped ErrPanicked", result.Err)
	}
}

func TestFireAndForgetReclaimsTask(t *testing.T) {
	sched, err := vial.NewScheduler(2, nil)
	if err != nil {
		t.Fatalf("NewScheduler() error: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	done := make(chan struct{})
	t2 := vial.NewTask(func(ctx *vial.Context) vial.Result[int] { return vial.Ok(1) })
	t2.OnDestroy(func() { close(done) })

	vial.FireAndForget(sched, func(ctx *vial.Context) vial.Result[int] {
		r := vial.Await(ctx, t2)
		return vial.Ok(r.Value)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("child awaited by a fire-and-forget task was never destroyed")
	}
}

func TestResultPanicsBeforeCompletion(t *testing.T) {
	// A task that has never been resumed is still Awaiting; its body
	// goroutine is parked on the initial rendezvous and never runs.
	tk := vial.NewTask(func(ctx *vial.Context) vial.Result[int] {
		return vial.Ok(0)
	})

	defer func() {
		if recover() == nil {
			t.Fatal("expected Result() to panic on an incomplete task")
		}
	}()
	tk.Result()
}
