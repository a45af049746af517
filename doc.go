// Copyright (c) 2026
//
// Package vial is a small asynchronous runtime: stackless coroutine-style
// tasks scheduled across a pool of worker goroutines and driven by a single
// readiness-based I/O reactor.
//
// Go has no native stackless coroutine, so a Task's body runs on a parked
// goroutine that hands control back to the driving worker at every
// suspension point through a rendezvous channel pair. The parked goroutine
// plays the role the coroutine frame plays in a language with real
// coroutines: it is the thing that is "resumed", and it costs nothing while
// suspended beyond the one blocked goroutine.
//
// A Task is driven by calling run, which resumes the body goroutine once and
// returns the state the body left the task in: Awaiting (suspended on a
// child task), BlockedOnIO (suspended on a file descriptor), or Complete.
// The Scheduler owns this resumption loop; task bodies never call run
// themselves.
//
// Submit a parentless, top-level task with Spawn if a plain (non-task)
// goroutine needs to observe its result through Done/Result, FireAndForget
// if nobody does (the Scheduler reclaims the task's goroutine on
// completion), or SpawnRoot to block synchronously until it completes. A
// task started with Spawn may later also be passed to Await from some
// other task — Await registers itself with the child and, separately,
// only enqueues it if it was never submitted to a scheduler before, so a
// child that is already running (or already finished) by the time it is
// awaited is handled correctly either way. Await I/O readiness with
// WaitForRead/WaitForWrite. Await a task created with NewTask (not yet
// run by anyone) with Await.
package vial
