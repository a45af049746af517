// File: task.go
// License: Apache-2.0
//
// Task: a resumable unit of work with a per-instance state machine. Go has
// no native stackless coroutine, so a Task's body runs on a parked
// goroutine that hands control to/from its driving worker through a pair
// of rendezvous channels — see doc.go.

package vial

import (
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/vial-run/vial/reactor"
)

// TaskState is the phase a Task is in: Awaiting is the initial state,
// Complete is terminal.
type TaskState uint8

const (
	StateAwaiting TaskState = iota
	StateBlockedOnIO
	StateComplete
)

func (s TaskState) String() string {
	switch s {
	case StateAwaiting:
		return "Awaiting"
	case StateBlockedOnIO:
		return "BlockedOnIO"
	case StateComplete:
		return "Complete"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(s))
	}
}

// Operation is the function a Task is constructed from. It runs once, on
// the task's own goroutine, calling Await/WaitForRead/WaitForWrite at
// each suspension point. ctx must not escape the call to Operation.
type Operation[R any] func(ctx *Context) Result[R]

// taskHandle is the type-erased task base the Scheduler and the awaitable
// protocol operate on: run, get/set state, get/clear awaiting child,
// get/clear io awaitable, take the completion callback, enqueued flag,
// submitted flag, delete-on-completion flag, destroy. Go's garbage
// collector removes the need for explicit clone/refcount handle machinery:
// every taskHandle value is just the one *Task[R] pointer, shared by
// reference.
type taskHandle interface {
	run() TaskState
	state() TaskState

	awaitingChild() taskHandle
	clearAwaitingChild()

	ioAwaitable() *ioAwaitable
	clearIOAwaitable()

	// takeCallback returns the task registered (via registerAwaiter) to
	// resume when this task completes, clearing it so it can never be
	// taken twice. nil means nobody had registered by the time this task
	// completed.
	takeCallback() taskHandle

	// tryEnqueue atomically flips the handle from "not in any ready
	// queue" to "in a ready queue", returning false if it was already
	// there. clearEnqueued is called by whichever worker pops it back
	// out. Together these make re-enqueueing the same handle idempotent
	// (a double wake-up collapses to one queue entry).
	tryEnqueue() bool
	clearEnqueued()

	// trySubmit atomically flips the handle from "never handed to a
	// scheduler" to "handed to a scheduler", returning false if it was
	// already submitted. This is what lets a task that was independently
	// Spawn'd, and is therefore already running or queued, be safely
	// Awaited afterward without the awaiter re-enqueueing it a second
	// time.
	trySubmit() bool

	deleteOnCompletion() bool
	setDeleteOnCompletion()

	destroy()
	resultErr() error
	ID() uintptr

	// suspend mechanics, used only from Context/Await/WaitForRead/WaitForWrite.
	setAwaitingChild(taskHandle)
	setIOAwaitable(*ioAwaitable)
	parkUntilResumed(TaskState)
}

// Task is a resumable computation parameterized by a result type R.
type Task[R any] struct {
	resumeCh chan struct{}
	yieldCh  chan TaskState
	doneCh   chan struct{}

	stateVal atomic.Uint32

	awaiting taskHandle
	io       *ioAwaitable

	// cbMu guards cb against the race between a task completing and a
	// late Await call registering itself as that task's watcher: whichever
	// of the two runs first under cbMu decides whether the completer wakes
	// the watcher or the watcher finds the task already done.
	cbMu sync.Mutex
	cb   taskHandle

	enq       atomic.Bool
	submitted atomic.Bool
	delOnC    atomic.Bool
	result    Result[R]
	destroyed atomic.Bool
	onDestroy func()
}

// NewTask constructs a Task from op. The task does not begin running until
// the scheduler resumes it for the first time: construction always suspends before running a single line
// of op.
func NewTask[R any](op Operation[R]) *Task[R] {
	t := &Task[R]{
		resumeCh: make(chan struct{}),
		yieldCh:  make(chan TaskState),
		doneCh:   make(chan struct{}),
	}
	t.stateVal.Store(uint32(StateAwaiting))
	go t.body(op)
	return t
}

// OnDestroy registers fn to be called exactly once, the moment destroy is
// called on t. Tests use this as a drop counter to verify fire-and-forget
// reclamation.
func (t *Task[R]) OnDestroy(fn func()) {
	t.onDestroy = fn
}

func (t *Task[R]) body(op Operation[R]) {
	<-t.resumeCh

	ctx := &Context{self: t}
	result := runOperationRecoveringPanics(op, ctx)

	t.result = result
	t.stateVal.Store(uint32(StateComplete))
	close(t.doneCh)
	t.yieldCh <- StateComplete
}

// Done returns a channel that closes the instant t reaches StateComplete.
// It exists independently of the scheduler's callback/delete-on-completion
// machinery so a non-task goroutine (Run, a test, SpawnRoot) can block on
// a task's completion without itself being a Task.
func (t *Task[R]) Done() <-chan struct{} { return t.doneCh }

// runOperationRecoveringPanics converts an unrecovered panic inside a task
// body into an error on the Result, so a fault surfaces at whichever
// goroutine reads Result() instead of leaving the task in an undefined
// state or taking down its worker.
func runOperationRecoveringPanics[R any](op Operation[R], ctx *Context) (result Result[R]) {
	defer func() {
		if v := recover(); v != nil {
			result = Failed[R](fmt.Errorf("%w: %v\n%s", ErrPanicked, v, debug.Stack()))
		}
	}()
	return op(ctx)
}

// run resumes the task's body once. Precondition: State() != Complete.
func (t *Task[R]) run() TaskState {
	t.resumeCh <- struct{}{}
	s := <-t.yieldCh
	t.stateVal.Store(uint32(s))
	return s
}

func (t *Task[R]) state() TaskState { return TaskState(t.stateVal.Load()) }

// State returns the task's current phase. Exported for callers outside
// this package that need to report task lifecycle.
func (t *Task[R]) State() TaskState { return t.state() }

func (t *Task[R]) awaitingChild() taskHandle { return t.awaiting }
func (t *Task[R]) clearAwaitingChild()       { t.awaiting = nil }
func (t *Task[R]) setAwaitingChild(h taskHandle) { t.awaiting = h }

func (t *Task[R]) ioAwaitable() *ioAwaitable    { return t.io }
func (t *Task[R]) clearIOAwaitable()            { t.io = nil }
func (t *Task[R]) setIOAwaitable(io *ioAwaitable) { t.io = io }

// registerAwaiter records parent as the task to resume when t completes.
// If t has already completed, it reports that instead of registering
// anything — a subsequent takeCallback on t would otherwise never see
// parent, since completeTask only ever inspects cb once, at the moment
// t's own completion is observed by the scheduler.
func (t *Task[R]) registerAwaiter(parent taskHandle) (alreadyComplete bool) {
	t.cbMu.Lock()
	defer t.cbMu.Unlock()
	if t.state() == StateComplete {
		return true
	}
	t.cb = parent
	return false
}

func (t *Task[R]) takeCallback() taskHandle {
	t.cbMu.Lock()
	defer t.cbMu.Unlock()
	cb := t.cb
	t.cb = nil
	return cb
}

func (t *Task[R]) tryEnqueue() bool { return t.enq.CompareAndSwap(false, true) }
func (t *Task[R]) clearEnqueued()   { t.enq.Store(false) }

// trySubmit reports whether this is the first time t has been handed to a
// scheduler. Spawn, FireAndForget, and SpawnRoot call it on a task they
// themselves enqueue; step calls it on a child named by Await so a task
// that was already Spawn'd earlier — and so may already be running — is
// never enqueued a second time.
func (t *Task[R]) trySubmit() bool { return t.submitted.CompareAndSwap(false, true) }

func (t *Task[R]) deleteOnCompletion() bool { return t.delOnC.Load() }
func (t *Task[R]) setDeleteOnCompletion()   { t.delOnC.Store(true) }

// destroy releases the task. Go has no coroutine frame to free, but the
// contract ("called exactly once per task") is still enforced, and
// OnDestroy's hook still fires exactly once, so fire-and-forget reclamation
// remains observable.
func (t *Task[R]) destroy() {
	if t.destroyed.CompareAndSwap(false, true) && t.onDestroy != nil {
		t.onDestroy()
	}
}

// parkUntilResumed is the suspend half of the rendezvous: record the new
// state, hand control back to whichever worker is driving this task, and
// block until some worker (not necessarily the same one) resumes it.
func (t *Task[R]) parkUntilResumed(s TaskState) {
	t.stateVal.Store(uint32(s))
	t.yieldCh <- s
	<-t.resumeCh
}

// ID returns a value stable for the task's lifetime and unique among
// currently-live tasks, for correlating log lines and the vcontrol
// "tasks" probe.
func (t *Task[R]) ID() uintptr { return uintptr(unsafe.Pointer(t)) }

func (t *Task[R]) resultErr() error { return t.result.Err }

// Result returns the task's outcome. Precondition: State() == Complete;
// the result is defined only once the task has reached that state.
func (t *Task[R]) Result() Result[R] {
	if t.state() != StateComplete {
		panic("vial: Result called on a task that has not completed")
	}
	return t.result
}

// Context is the value an Operation receives; it is the bridge between
// task-body code and the suspension machinery. A Context must not escape
// the Operation call it was created for — the task it wraps may already
// be destroyed once its body returns.
type Context struct {
	self taskHandle
}

// Await suspends the calling task until child completes, then returns
// child's Result and destroys child. child may be a bare NewTask that
// nothing has run yet, or one already running (or already complete)
// because it was independently Spawn'd — registerAwaiter and trySubmit
// together make both cases safe: a child that finished before it was
// awaited is detected here and never re-enqueued, and a child that was
// already submitted elsewhere is never enqueued a second time.
func Await[R2 any](ctx *Context, child *Task[R2]) Result[R2] {
	if child.registerAwaiter(ctx.self) {
		result := child.Result()
		child.destroy()
		return result
	}
	ctx.self.setAwaitingChild(child)
	ctx.self.parkUntilResumed(StateAwaiting)
	result := child.Result()
	child.destroy()
	return result
}

// Reactor is re-exported here only as a type reference so Context and the
// Scheduler can talk about it without every caller importing the reactor
// subpackage directly for that purpose alone.
type Reactor = reactor.Reactor
