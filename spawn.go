// File: spawn.go
// License: Apache-2.0
//
// Entry points for starting a task without a parent: Spawn for a task a
// plain (non-task) goroutine wants to wait on, FireAndForget for one
// nobody waits on, SpawnRoot for blocking synchronously on the result. A
// task started with Spawn may later also be passed to Await from
// some other task: trySubmit (task.go) marks it submitted the moment it
// is enqueued here, so Await's StateAwaiting handling in scheduler.go
// knows not to enqueue it again, and registerAwaiter's completion check
// covers the case where it finishes before anyone gets around to
// awaiting it.

package vial

// Spawn starts op running as an independent ready task on s and returns
// its handle immediately. The caller is responsible for eventually
// observing completion, e.g. via t.Done() — Spawn does not itself retain
// or reclaim the task.
func Spawn[R any](s *Scheduler, op Operation[R]) *Task[R] {
	t := NewTask(op)
	s.trackTask(t)
	if s.metrics != nil {
		s.metrics.IncTasksSpawned()
	}
	t.trySubmit()
	s.enqueueExternal(t)
	return t
}

// FireAndForget starts op running with no one watching. The scheduler
// calls destroy on it the moment it completes. No handle is returned, so
// no OnDestroy hook can be attached to a task started this way.
func FireAndForget[R any](s *Scheduler, op Operation[R]) {
	t := NewTask(op)
	t.setDeleteOnCompletion()
	s.trackTask(t)
	if s.metrics != nil {
		s.metrics.IncTasksSpawned()
	}
	t.trySubmit()
	s.enqueueExternal(t)
}

// SpawnRoot starts op on s and blocks the calling goroutine until it
// completes, returning its Result. This is how a non-task goroutine (the
// process entry point, a test) drives a task tree to completion.
func SpawnRoot[R any](s *Scheduler, op Operation[R]) Result[R] {
	t := NewTask(op)
	s.trackTask(t)
	if s.metrics != nil {
		s.metrics.IncTasksSpawned()
	}
	t.trySubmit()
	s.enqueueExternal(t)
	<-t.Done()
	return t.Result()
}
