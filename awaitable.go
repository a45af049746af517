// File: awaitable.go
// License: Apache-2.0
//
// The I/O half of the awaitable protocol: wait-until-readable and
// wait-until-writable. Awaiting another task is handled directly by
// Await (task.go) since it always needs the scheduler's
// awaiting-child plumbing rather than a pluggable readiness check.

package vial

import (
	"golang.org/x/sys/unix"

	"github.com/vial-run/vial/reactor"
)

type ioKind uint8

const (
	kindRead ioKind = iota
	kindWrite
)

// ioAwaitable describes "wait until fd is readable/writable". It is a
// small value object: cheap to duplicate, and it knows how to register a
// single-shot callback with a Reactor. A tagged kindRead/kindWrite field
// stands in for what a polymorphic base class with virtual dispatch would
// do in a language with one.
type ioAwaitable struct {
	fd   int
	kind ioKind
}

// readyNow is a fast, non-blocking probe: a zero-timeout poll of fd for
// the relevant event. If true, the caller skips suspension entirely and
// proceeds straight to the syscall.
func (io *ioAwaitable) readyNow() bool {
	var events int16
	switch io.kind {
	case kindRead:
		events = unix.POLLIN
	case kindWrite:
		events = unix.POLLOUT
	}
	fds := []unix.PollFd{{Fd: int32(io.fd), Events: events}}
	n, err := unix.Poll(fds, 0)
	if err != nil {
		return false
	}
	return n > 0 && fds[0].Revents&events != 0
}

// register hands io to r with cb as the one-shot wake-up callback.
func (io *ioAwaitable) register(r *reactor.Reactor, cb func()) error {
	switch io.kind {
	case kindRead:
		return r.RegisterRead(io.fd, cb)
	case kindWrite:
		return r.RegisterWrite(io.fd, cb)
	}
	return nil
}

// WaitForRead suspends the calling task until fd becomes readable (or
// returns immediately if it already is). It does not perform the read; a
// read that still returns EAGAIN afterwards is the caller's to handle, and
// net.Read handles it by waiting again and retrying rather than returning
// a short read; see ErrWouldBlock.
func WaitForRead(ctx *Context, fd int) {
	waitForIO(ctx, &ioAwaitable{fd: fd, kind: kindRead})
}

// WaitForWrite suspends the calling task until fd becomes writable (or
// returns immediately if it already is).
func WaitForWrite(ctx *Context, fd int) {
	waitForIO(ctx, &ioAwaitable{fd: fd, kind: kindWrite})
}

func waitForIO(ctx *Context, io *ioAwaitable) {
	if io.readyNow() {
		// Fast path: skip the reactor round-trip entirely.
		return
	}
	ctx.self.setIOAwaitable(io)
	ctx.self.parkUntilResumed(StateBlockedOnIO)
}
