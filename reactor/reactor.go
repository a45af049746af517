// File: reactor/reactor.go
// License: Apache-2.0

package reactor

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClosed is returned by registration calls made after Stop.
var ErrClosed = errors.New("reactor: closed")

// pollTimeout bounds how long a single Run iteration blocks in the
// platform wait call, so Stop is noticed promptly even with no fds
// registered and nothing pending.
const pollTimeout = 50 * time.Millisecond

// backend is the platform-specific half: add/modify/remove a watched fd
// and block until one or more watched fds are ready. Implemented by
// epollBackend (linux) or a stub that always fails to construct.
type backend interface {
	add(fd int, readable, writable bool) error
	modify(fd int, readable, writable bool) error
	remove(fd int) error
	wait(timeout time.Duration) (readyRead, readyWrite []int, err error)
	close() error
}

func newBackend() (backend, error) {
	return newPlatformBackend()
}

// Reactor multiplexes readiness across a set of file descriptors on one
// dedicated goroutine. All exported methods other than Run are safe to
// call concurrently with Run and with each other; the fd set and both
// callback maps share one mutex because the invariant "a registered
// callback's fd is in the watched set" must be checked and updated
// atomically across all three.
type Reactor struct {
	mu      sync.Mutex
	be      backend
	fds     map[int]struct{}
	readCB  map[int]func()
	writeCB map[int]func()

	closed atomic.Bool
	stopCh chan struct{}
}

// New constructs a Reactor using the platform's native readiness backend
// (epoll on Linux). On platforms without a backend this returns an error;
// callers without a reactor-dependent need (no sockets, no task I/O waits)
// can simply not construct one.
func New() (*Reactor, error) {
	be, err := newBackend()
	if err != nil {
		return nil, err
	}
	return &Reactor{
		be:      be,
		fds:     make(map[int]struct{}),
		readCB:  make(map[int]func()),
		writeCB: make(map[int]func()),
		stopCh:  make(chan struct{}),
	}, nil
}

// RegisterRead arms a one-shot callback for fd becoming readable. cb runs
// on the Reactor's Run goroutine; it must not block.
func (r *Reactor) RegisterRead(fd int, cb func()) error {
	return r.register(fd, cb, true)
}

// RegisterWrite arms a one-shot callback for fd becoming writable.
func (r *Reactor) RegisterWrite(fd int, cb func()) error {
	return r.register(fd, cb, false)
}

func (r *Reactor) register(fd int, cb func(), read bool) error {
	if r.closed.Load() {
		return ErrClosed
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	_, watched := r.fds[fd]
	// A second waiter on the same (fd, direction) before the first has
	// fired is dropped, not queued — known limitation, not a bug; see
	// DESIGN.md.
	if read {
		if _, armed := r.readCB[fd]; armed {
			log.Printf("reactor: dropping second read waiter on fd %d", fd)
			return nil
		}
		r.readCB[fd] = cb
	} else {
		if _, armed := r.writeCB[fd]; armed {
			log.Printf("reactor: dropping second write waiter on fd %d", fd)
			return nil
		}
		r.writeCB[fd] = cb
	}
	_, wantRead := r.readCB[fd]
	_, wantWrite := r.writeCB[fd]

	if watched {
		return r.be.modify(fd, wantRead, wantWrite)
	}
	if err := r.be.add(fd, wantRead, wantWrite); err != nil {
		delete(r.readCB, fd)
		delete(r.writeCB, fd)
		return err
	}
	r.fds[fd] = struct{}{}
	return nil
}

// Unregister removes fd from the watch set entirely, dropping any armed
// callbacks without invoking them. net.Socket.Close calls this on
// vial.DefaultReactor before closing the fd.
func (r *Reactor) Unregister(fd int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.fds[fd]; !ok {
		return nil
	}
	delete(r.fds, fd)
	delete(r.readCB, fd)
	delete(r.writeCB, fd)
	return r.be.remove(fd)
}

// Run drives the reactor loop until Stop is called. It is meant to run on
// its own dedicated goroutine; vial.Run locks that goroutine's OS thread
// before calling Run, since epoll fd ownership is otherwise tied to
// whichever thread created it.
func (r *Reactor) Run() error {
	for {
		select {
		case <-r.stopCh:
			return nil
		default:
		}

		readyRead, readyWrite, err := r.be.wait(pollTimeout)
		if err != nil {
			return err
		}

		for _, fd := range readyRead {
			r.fire(fd, true)
		}
		for _, fd := range readyWrite {
			r.fire(fd, false)
		}
	}
}

// fire consumes and invokes the one-shot callback armed for fd, per the
// readiness contract: a callback fires at most once per registration.
// Registering a new one is the caller's job (net.Socket re-registers
// itself on the next WaitForRead/WaitForWrite call if it's still short).
func (r *Reactor) fire(fd int, read bool) {
	r.mu.Lock()
	var cb func()
	if read {
		cb = r.readCB[fd]
		delete(r.readCB, fd)
	} else {
		cb = r.writeCB[fd]
		delete(r.writeCB, fd)
	}
	_, stillRead := r.readCB[fd]
	_, stillWrite := r.writeCB[fd]
	if _, watched := r.fds[fd]; watched {
		_ = r.be.modify(fd, stillRead, stillWrite)
	}
	r.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// Stop ends a running Run loop and closes the backend. Registration calls
// made after Stop return ErrClosed.
func (r *Reactor) Stop() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(r.stopCh)
	return r.be.close()
}
