package scheduler

import "sync"

// PlanThreadSignal is the cooperative stop flag one plan's goroutine polls
// between sleeps (spec C10), grounded on original_source's
// thread::types::PlanThreadSignal{kill}.
type PlanThreadSignal struct {
	mu   sync.Mutex
	kill bool
}

func (s *PlanThreadSignal) Kill() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kill = true
}

func (s *PlanThreadSignal) ShouldKill() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kill
}

// RunState is the single-flight set of currently-dispatching plan names
// (spec §4.3): if a plan's prior run hasn't finished by the time its next
// interval boundary arrives, the new tick is skipped rather than queued.
type RunState struct {
	mu      sync.Mutex
	running map[string]bool
}

func NewRunState() *RunState {
	return &RunState{running: make(map[string]bool)}
}

// TryStart marks name as running and reports whether it succeeded (false
// if name was already running).
func (r *RunState) TryStart(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running[name] {
		return false
	}
	r.running[name] = true
	return true
}

func (r *RunState) Finish(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, name)
}
