// File: runtime.go
// License: Apache-2.0
//
// Process-level entry points: one dedicated reactor thread, a scheduler
// that drives the ready queues, and a root task whose completion triggers
// graceful shutdown.

package vial

import (
	"log"
	"os"
	"runtime"

	vialreactor "github.com/vial-run/vial/reactor"
	"github.com/vial-run/vial/vcontrol"
)

// defaultScheduler, defaultReactor, defaultMetrics, defaultProbes and
// defaultConfig are the process's only instances of each, installed by
// Run. A second async runtime per process was never a goal of this
// package — everything that needs to reach the running scheduler or
// reactor (net.Socket, vcontrol probes) does so through these, not
// through values threaded through every call.
var (
	defaultScheduler *Scheduler
	defaultReactor   *vialreactor.Reactor
	defaultMetrics   *vcontrol.Metrics
	defaultProbes    *vcontrol.Probes
	defaultConfig    *vcontrol.Config
)

// DefaultScheduler returns the Scheduler installed by Run, or nil if Run
// has not been called yet.
func DefaultScheduler() *Scheduler { return defaultScheduler }

// DefaultReactor returns the Reactor installed by Run, or nil if Run has
// not been called yet or the platform has no readiness backend.
func DefaultReactor() *vialreactor.Reactor { return defaultReactor }

// DefaultMetrics returns the Metrics installed by Run.
func DefaultMetrics() *vcontrol.Metrics { return defaultMetrics }

// DefaultProbes returns the Probes registry installed by Run. Callers add
// their own named probes (e.g. a socket pool's live-connection count);
// the runtime itself registers "scheduler.workers".
func DefaultProbes() *vcontrol.Probes { return defaultProbes }

// DefaultConfig returns the Config installed by Run. It holds the
// scheduler's tunables — "num_workers" (read once, at Run) and
// "local_queue_limit" (hot-reloadable; Set takes effect on the next
// enqueue decision).
func DefaultConfig() *vcontrol.Config { return defaultConfig }

// Run starts the runtime's reactor thread and worker pool, runs rootOp to
// completion as the program's root task, performs a graceful shutdown,
// and returns rootOp's result value — or 1 if it failed, after logging
// the error, matching the convention of returning a process exit code.
func Run(rootOp Operation[int]) int {
	r, err := vialreactor.New()
	if err != nil {
		log.Printf("vial: no reactor backend on this platform, I/O waits will be dropped: %v", err)
		r = nil
	} else {
		go func() {
			runtime.LockOSThread()
			if runErr := r.Run(); runErr != nil {
				log.Printf("vial: reactor loop exited: %v", runErr)
			}
		}()
	}

	cfg := vcontrol.NewConfig()
	cfg.Set(map[string]any{"num_workers": 0, "local_queue_limit": localQueueThreshold})
	numWorkers := 0
	if v, ok := cfg.Get("num_workers"); ok {
		if n, ok := v.(int); ok {
			numWorkers = n
		}
	}

	sched, err := NewScheduler(numWorkers, r)
	if err != nil {
		log.Fatalf("vial: %v", err)
	}
	sched.SetConfig(cfg)
	defaultMetrics = vcontrol.NewMetrics()
	defaultProbes = vcontrol.NewProbes()
	defaultProbes.Register("scheduler.workers", func() any { return sched.numWorkers })
	defaultProbes.Register("tasks", func() any { return sched.LiveTasks() })
	defaultProbes.Register("config", func() any { return cfg.Snapshot() })
	sched.SetMetrics(defaultMetrics)

	defaultConfig = cfg
	defaultScheduler = sched
	defaultReactor = r
	sched.Start()

	result := SpawnRoot(sched, rootOp)
	gracefulShutdown()

	if result.Err != nil {
		log.Printf("vial: root task failed: %v", result.Err)
		return 1
	}
	return result.Value
}

func gracefulShutdown() {
	if defaultScheduler != nil {
		defaultScheduler.Stop()
	}
	if defaultReactor != nil {
		if err := defaultReactor.Stop(); err != nil {
			log.Printf("vial: reactor stop: %v", err)
		}
	}
}

// ShutdownAndExit stops the scheduler and reactor and terminates the
// process immediately with code, the way a SIGINT/SIGTERM handler ends
// the program instead of letting the root task return naturally.
func ShutdownAndExit(code int) {
	gracefulShutdown()
	os.Exit(code)
}
