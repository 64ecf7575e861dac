// Package scheduler implements the plan daemon (spec C6 / §4.3): a
// 1-second wall-clock tick drives a periodic registry.Reset(), while each
// enabled plan runs on its own goroutine sleeping to its own interval
// boundary, grounded on original_source's thread::plan_thread.rs
// (plan_thread_fn's kill-signal loop and get_plan_next_sleep_time_millie's
// wall-clock-or-named-connection clock source) and the teacher's
// dispatcher.go/worker.go ticker-plus-goroutine-fleet shape. Dispatch itself
// is bounded by a shared worker pool (spec §4.3/§5's "shared, bounded, ~100
// workers"), the same panjf2000/ants/v2 pool pyvm already uses for its own
// "bounded worker pool of script bodies" concern.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/apperr"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/metrics"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/plan"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/registry"
)

// dispatchTimeout bounds a single plan run so a wedged backend can't starve
// a worker indefinitely; the run is simply treated as failed on timeout and
// the plan's goroutine dispatches again at its next interval boundary.
const dispatchTimeout = 30 * time.Second

// Scheduler owns the fleet of per-plan goroutines, the shared dispatch
// worker pool, and the registry reset cadence.
type Scheduler struct {
	reg    *registry.Registry
	logger *slog.Logger

	tick  time.Duration
	reset time.Duration

	runState *RunState
	workers  *ants.Pool

	mu      sync.Mutex
	signals map[string]*PlanThreadSignal
	wg      sync.WaitGroup
}

// New builds a Scheduler. tick is the wall-clock cadence the daemon loop
// polls plan membership at (spec default 1s); reset is how often
// registry.Reset() runs (spec default 60s); workerPoolSize bounds the shared
// dispatch pool every plan's tick enqueues into (spec default ~100, falls
// back to 100 if <= 0).
func New(reg *registry.Registry, logger *slog.Logger, tick, reset time.Duration, workerPoolSize int) *Scheduler {
	if workerPoolSize <= 0 {
		workerPoolSize = 100
	}
	workers, _ := ants.NewPool(workerPoolSize, ants.WithNonblocking(true))
	return &Scheduler{
		reg:      reg,
		logger:   logger.With("component", "scheduler"),
		tick:     tick,
		reset:    reset,
		runState: NewRunState(),
		workers:  workers,
		signals:  make(map[string]*PlanThreadSignal),
	}
}

// Start runs the daemon loop until ctx is cancelled: it keeps the set of
// per-plan goroutines in sync with the registry's current plans and resets
// the registry on its own cadence, then blocks until every plan goroutine
// has observed its kill signal and returned.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "tick", s.tick, "reset", s.reset)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	lastReset := time.Now()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			s.killAll()
			s.wg.Wait()
			s.workers.Release()
			return nil
		case now := <-ticker.C:
			if now.Sub(lastReset) >= s.reset {
				if err := s.reg.Reset(); err != nil {
					s.logger.Error("registry reset failed", "error", err)
				}
				metrics.RegistryResetTotal.Inc()
				metrics.ConnectionsActive.Set(float64(len(s.reg.ConnectionNames())))
				lastReset = now
			}
			s.syncPlanWorkers(ctx)
		}
	}
}

// syncPlanWorkers starts a goroutine for every enabled plan the registry
// knows about that doesn't have one yet, and kills goroutines for plans
// that disappeared or were disabled since the last sync.
func (s *Scheduler) syncPlanWorkers(ctx context.Context) {
	plans, err := s.reg.Plans()
	if err != nil {
		s.logger.Error("list plans failed", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for name, p := range plans {
		if !p.Enable {
			continue
		}
		if _, running := s.signals[name]; running {
			continue
		}
		sig := &PlanThreadSignal{}
		s.signals[name] = sig
		s.wg.Add(1)
		go s.runPlanLoop(ctx, name, p, sig)
	}

	for name, sig := range s.signals {
		p, stillEnabled := plans[name]
		if !stillEnabled || !p.Enable {
			sig.Kill()
			delete(s.signals, name)
		}
	}
}

func (s *Scheduler) killAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sig := range s.signals {
		sig.Kill()
	}
}

// runPlanLoop is one plan's goroutine: sleep to the next interval boundary,
// check for a kill signal, then dispatch unless the previous run is still
// in flight (spec §4.3's single-flight RunState).
func (s *Scheduler) runPlanLoop(ctx context.Context, name string, p plan.Plan, sig *PlanThreadSignal) {
	defer s.wg.Done()
	logger := s.logger.With("plan", name)

	for {
		if sig.ShouldKill() {
			logger.Debug("plan worker observed kill signal")
			return
		}

		sleepFor, err := s.nextSleep(p.Interval)
		if err != nil {
			logger.Error("compute next sleep failed", "error", err)
			s.mu.Lock()
			if s.signals[name] == sig {
				delete(s.signals, name)
			}
			s.mu.Unlock()
			return
		}

		timer := time.NewTimer(sleepFor)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if sig.ShouldKill() {
			return
		}

		if !s.runState.TryStart(name) {
			logger.Warn("previous run still in flight, skipping tick")
			metrics.PlanSkippedTotal.WithLabelValues(name).Inc()
			continue
		}
		metrics.PlanRunsInFlight.Inc()

		submitErr := s.workers.Submit(func() {
			defer metrics.PlanRunsInFlight.Dec()
			defer s.runState.Finish(name)
			s.dispatchOnce(name, p, logger)
		})
		if submitErr != nil {
			metrics.PlanRunsInFlight.Dec()
			s.runState.Finish(name)
			metrics.PlanSkippedTotal.WithLabelValues(name).Inc()
			logger.Warn("worker pool saturated, skipping tick", "error", submitErr)
		}
	}
}

// nextSleep computes the duration until the plan's next interval boundary,
// per spec §4.3: if interval.connection is empty, the clock source is
// wall-clock; otherwise it borrows that connection's executor and asks its
// CurrentTime().
func (s *Scheduler) nextSleep(interval plan.Interval) (time.Duration, error) {
	var nowMillis int64

	if interval.Connection == "" {
		nowMillis = time.Now().UnixMilli()
	} else {
		p, err := s.reg.GetExecutorPool(interval.Connection)
		if err != nil {
			return 0, apperr.Wrap(apperr.KindConnectionLost, "scheduler.nextSleep", err)
		}
		h, err := p.Acquire(context.Background())
		if err != nil {
			return 0, apperr.Wrap(apperr.KindConnectionLost, "scheduler.nextSleep", err)
		}
		d, err := h.Value().CurrentTime(context.Background())
		if err != nil {
			h.Discard()
			return 0, apperr.Wrap(apperr.KindExecuteFail, "scheduler.nextSleep", err)
		}
		h.Release()
		nowMillis = d.Milliseconds()
	}

	intervalMs := int64(interval.Second) * 1000
	elapsed := nowMillis % intervalMs
	remaining := intervalMs - elapsed
	return time.Duration(remaining) * time.Millisecond, nil
}

// dispatchOnce makes a single dispatch attempt and logs the outcome. There is
// no in-process retry: on error it logs and returns, leaving RunState clear
// so the plan's goroutine dispatches it again at its next interval boundary.
func (s *Scheduler) dispatchOnce(name string, p plan.Plan, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	start := time.Now()
	err := s.dispatch(ctx, name, p)
	elapsed := time.Since(start)
	cancel()

	if err != nil {
		metrics.PlanDispatchDuration.WithLabelValues(name, "failure").Observe(elapsed.Seconds())
		metrics.PlanDispatchTotal.WithLabelValues(name, "failure").Inc()
		logger.Error("plan run failed", "error", err)
		return
	}
	metrics.PlanDispatchDuration.WithLabelValues(name, "success").Observe(elapsed.Seconds())
	metrics.PlanDispatchTotal.WithLabelValues(name, "success").Inc()
	logger.Debug("plan run succeeded")
}
