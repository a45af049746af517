// File: scheduler.go
// License: Apache-2.0
//
// Scheduler drives a fixed pool of worker goroutines, each resuming ready
// tasks off a local queue with an unbounded global queue as backstop.

package vial

import (
	"errors"
	"log"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"code.hybscloud.com/iox"

	"github.com/vial-run/vial/reactor"
	"github.com/vial-run/vial/vcontrol"
)

// localQueueThreshold is the per-worker local-queue size above which newly
// ready tasks spill to the global queue instead.
const localQueueThreshold = 256

// Scheduler owns a worker pool and the ready queues that feed it. A
// Scheduler with no Reactor wired in can still run tasks that never call
// WaitForRead/WaitForWrite; any task that does will be dropped with a
// logged warning (see step's BlockedOnIO case).
type Scheduler struct {
	numWorkers int
	reactor    *reactor.Reactor
	metrics    *vcontrol.Metrics
	config     *vcontrol.Config

	localQueueLimit atomic.Int64

	globalMu sync.Mutex
	global   *queue.Queue

	liveTasks sync.Map // uintptr -> taskHandle; top-level tasks only

	stopCh  chan struct{}
	stopped atomic.Bool
	wg      sync.WaitGroup
}

func (s *Scheduler) trackTask(h taskHandle)   { s.liveTasks.Store(h.ID(), h) }
func (s *Scheduler) untrackTask(h taskHandle) { s.liveTasks.Delete(h.ID()) }

// LiveTasks reports the state of every top-level task (one spawned with
// Spawn, FireAndForget, or SpawnRoot) that has not yet completed. Tasks
// created only as someone else's awaited child are not tracked here; they
// are reachable only through the parent that awaits them. This backs the
// vcontrol "tasks" probe.
func (s *Scheduler) LiveTasks() map[uintptr]string {
	out := make(map[uintptr]string)
	s.liveTasks.Range(func(k, v any) bool {
		out[k.(uintptr)] = v.(taskHandle).state().String()
		return true
	})
	return out
}

// SetMetrics wires m so the scheduler reports task lifecycle counters into
// it. Safe to call before Start; not meant to be changed afterward.
func (s *Scheduler) SetMetrics(m *vcontrol.Metrics) { s.metrics = m }

// SetConfig wires c as the source of this scheduler's hot-reloadable
// tunables. Currently that is just "local_queue_limit" (an int overriding
// localQueueThreshold); worker count is read once at construction time via
// NewScheduler's argument, matching Config's own doc comment that
// construction-time values are not meant to be hot-reloaded.
func (s *Scheduler) SetConfig(c *vcontrol.Config) {
	s.config = c
	s.applyConfig()
	c.OnReload(s.applyConfig)
}

func (s *Scheduler) applyConfig() {
	v, ok := s.config.Get("local_queue_limit")
	if !ok {
		return
	}
	limit, ok := v.(int)
	if !ok || limit <= 0 {
		return
	}
	s.localQueueLimit.Store(int64(limit))
}

type worker struct {
	local   *queue.Queue
	backoff iox.Backoff
}

// NewScheduler builds a Scheduler with numWorkers worker goroutines. A
// numWorkers of 0 defaults to runtime.GOMAXPROCS(0), one worker per
// hardware thread Go's own scheduler will actually run concurrently. r may
// be nil if the program spawns no I/O-bound tasks; it is used only to
// register BlockedOnIO wake-up callbacks.
func NewScheduler(numWorkers int, r *reactor.Reactor) (*Scheduler, error) {
	if numWorkers < 0 {
		return nil, ErrInvalidWorkerCount
	}
	if numWorkers == 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	sched := &Scheduler{
		numWorkers: numWorkers,
		reactor:    r,
		global:     queue.New(),
		stopCh:     make(chan struct{}),
	}
	sched.localQueueLimit.Store(localQueueThreshold)
	return sched, nil
}

// Start launches the worker pool. It returns immediately; workers run
// until Stop is called.
func (s *Scheduler) Start() {
	for i := 0; i < s.numWorkers; i++ {
		w := &worker{local: queue.New()}
		s.wg.Add(1)
		go s.runWorker(w)
	}
}

// Stop signals every worker to exit once its local and the global queue
// run dry, and blocks until they have. Tasks still Awaiting or
// BlockedOnIO at that point are abandoned — Go's garbage collector, not an
// explicit destroy call, is what eventually reclaims them.
func (s *Scheduler) Stop() {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Scheduler) runWorker(w *worker) {
	defer s.wg.Done()
	for {
		h, ok := popLocal(w.local)
		if !ok {
			h, ok = s.popGlobal()
		}
		if !ok {
			select {
			case <-s.stopCh:
				if s.drained(w) {
					return
				}
			default:
			}
			w.backoff.Wait()
			continue
		}
		w.backoff.Reset()
		s.step(w, h)
	}
}

func (s *Scheduler) drained(w *worker) bool {
	s.globalMu.Lock()
	empty := w.local.Length() == 0 && s.global.Length() == 0
	s.globalMu.Unlock()
	return empty
}

func popLocal(q *queue.Queue) (taskHandle, bool) {
	if q.Length() == 0 {
		return nil, false
	}
	v := q.Remove()
	h, _ := v.(taskHandle)
	if h != nil {
		h.clearEnqueued()
	}
	return h, h != nil
}

func (s *Scheduler) popGlobal() (taskHandle, bool) {
	s.globalMu.Lock()
	defer s.globalMu.Unlock()
	if s.global.Length() == 0 {
		return nil, false
	}
	v := s.global.Remove()
	h, _ := v.(taskHandle)
	if h != nil {
		h.clearEnqueued()
	}
	return h, h != nil
}

func (s *Scheduler) pushGlobal(h taskHandle) {
	s.globalMu.Lock()
	s.global.Add(h)
	s.globalMu.Unlock()
}

// enqueueFromWorker implements the push policy: stay on the local queue
// while it has headroom, otherwise spill to the global queue so no one
// worker can starve the others. tryEnqueue makes this idempotent: a
// handle already sitting in a ready queue is not added a second time.
func (s *Scheduler) enqueueFromWorker(w *worker, h taskHandle) {
	if !h.tryEnqueue() {
		return
	}
	if w.local.Length() < int(s.localQueueLimit.Load()) {
		w.local.Add(h)
		return
	}
	s.pushGlobal(h)
}

// enqueueExternal is used by anything that is not a worker goroutine
// executing step: Spawn, FireAndForget, and reactor readiness callbacks
// (which run on the reactor's own goroutine).
func (s *Scheduler) enqueueExternal(h taskHandle) {
	if !h.tryEnqueue() {
		return
	}
	s.pushGlobal(h)
}

// step resumes h once and dispatches on the state it left off in. A
// handle popped off a ready queue can already be Complete — a worker that
// enqueued it as a wake-up and lost the race with its own completion, for
// instance — and run() must never be called again on one: the task's body
// goroutine has already exited, so a second send on resumeCh would block
// the calling worker forever.
func (s *Scheduler) step(w *worker, h taskHandle) {
	if h.state() == StateComplete {
		s.completeTask(w, h)
		return
	}
	switch st := h.run(); st {
	case StateAwaiting:
		child := h.awaitingChild()
		h.clearAwaitingChild()
		if child == nil {
			// Parked itself without naming a child or an fd: a bug in the
			// task body, not the scheduler. Re-enqueue so it at least
			// doesn't vanish silently.
			s.enqueueFromWorker(w, h)
			return
		}
		// Await already registered h as child's callback before parking
		// h, so the only thing left to do here is make sure child is
		// actually running. trySubmit reports false if child was already
		// handed to a scheduler earlier — e.g. an independently Spawn'd
		// task someone is now Awaiting — in which case it is already
		// queued or running and must not be enqueued a second time.
		if child.trySubmit() {
			s.enqueueFromWorker(w, child)
		}

	case StateBlockedOnIO:
		io := h.ioAwaitable()
		h.clearIOAwaitable()
		if s.reactor == nil || io == nil {
			log.Printf("vial: task parked on I/O with no reactor wired in; dropping")
			return
		}
		if err := io.register(s.reactor, func() { s.enqueueExternal(h) }); err != nil {
			log.Printf("vial: reactor registration failed: %v", err)
		} else if s.metrics != nil {
			s.metrics.IncIORegistered()
		}

	case StateComplete:
		s.completeTask(w, h)
	}
}

func (s *Scheduler) completeTask(w *worker, h taskHandle) {
	s.untrackTask(h)
	if s.metrics != nil {
		s.metrics.IncTasksCompleted()
		if errors.Is(h.resultErr(), ErrPanicked) {
			s.metrics.IncTasksPanicked()
		}
	}
	if parent := h.takeCallback(); parent != nil {
		// parent is parked inside Await; resuming it is what lets Await
		// read h's Result and destroy h. Destroying h here instead would
		// race that read.
		s.enqueueFromWorker(w, parent)
		return
	}
	if h.deleteOnCompletion() {
		h.destroy()
	}
}
