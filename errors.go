// File: errors.go
// License: Apache-2.0
//
// Sentinel errors for the vial runtime.

package vial

import (
	"errors"

	"code.hybscloud.com/iox"

	"github.com/vial-run/vial/reactor"
)

var (
	// ErrSchedulerClosed reports a scheduler on which Stop has been called.
	// Spawn, FireAndForget and SpawnRoot do not return it: they have no
	// error result, and a task submitted after Stop is queued but never run.
	ErrSchedulerClosed = errors.New("vial: scheduler is closed")

	// ErrReactorClosed is returned by reactor registration calls made
	// after Stop. It is the same value as reactor.ErrClosed.
	ErrReactorClosed = reactor.ErrClosed

	// ErrInvalidWorkerCount is returned by NewScheduler for a negative
	// worker count (0 selects the default).
	ErrInvalidWorkerCount = errors.New("vial: invalid worker count")

	// ErrPanicked wraps a recovered task-body panic so it surfaces as the
	// Err of the task's Result instead of taking down its worker.
	ErrPanicked = errors.New("vial: task panicked")

	// ErrWouldBlock re-exports iox's readiness sentinel for a syscall that
	// follows a readiness notification and returns EAGAIN anyway. Nothing
	// in this module returns it: net's Read, Write and Accept handle EAGAIN
	// by waiting for readiness again and repeating the syscall.
	ErrWouldBlock = iox.ErrWouldBlock
)
