// Copyright (c) 2026
//
// Package reactor is a single-threaded, level-triggered readiness
// multiplexer: register a file descriptor and a one-shot callback for
// read or write readiness, run the reactor loop on one dedicated thread,
// and the callback fires exactly once the next time that readiness holds.
//
// The vial package builds suspension of I/O-bound tasks on top of this:
// a task blocked on a descriptor registers a callback that re-enqueues
// it, then parks. The reactor never touches task state itself — it knows
// nothing about tasks, only file descriptors and callbacks.
package reactor
