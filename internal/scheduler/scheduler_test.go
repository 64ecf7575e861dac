package scheduler

import (
	"log/slog"
	"testing"
	"time"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/plan"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/registry"
)

type fakeLoader struct{}

func (fakeLoader) LoadAppConfig() ([]byte, error) { return nil, nil }
func (fakeLoader) LoadConnections() (map[string]plan.ConnectionInfo, error) {
	return map[string]plan.ConnectionInfo{}, nil
}
func (fakeLoader) LoadPlans() (map[string]plan.Plan, error) { return map[string]plan.Plan{}, nil }
func (fakeLoader) LoadScriptSource(file string) (string, error) { return "", nil }

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New(nil)
	if err := reg.Initialize(fakeLoader{}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return reg
}

func TestRunStateSingleFlight(t *testing.T) {
	rs := NewRunState()

	if !rs.TryStart("p1") {
		t.Fatal("expected first TryStart to succeed")
	}
	if rs.TryStart("p1") {
		t.Fatal("expected second concurrent TryStart to fail")
	}

	rs.Finish("p1")
	if !rs.TryStart("p1") {
		t.Fatal("expected TryStart to succeed again after Finish")
	}
}

func TestRunStateTracksPlansIndependently(t *testing.T) {
	rs := NewRunState()

	if !rs.TryStart("p1") {
		t.Fatal("expected p1 TryStart to succeed")
	}
	if !rs.TryStart("p2") {
		t.Fatal("expected p2 TryStart to succeed independently of p1")
	}
}

func TestPlanThreadSignalKill(t *testing.T) {
	var sig PlanThreadSignal
	if sig.ShouldKill() {
		t.Fatal("fresh signal should not report kill")
	}
	sig.Kill()
	if !sig.ShouldKill() {
		t.Fatal("expected ShouldKill true after Kill")
	}
}

func TestNextSleepWallClockAlignsToBoundary(t *testing.T) {
	s := New(newTestRegistry(t), slog.Default(), time.Second, time.Minute, 100)
	d, err := s.nextSleep(plan.Interval{Second: 1})
	if err != nil {
		t.Fatalf("nextSleep: %v", err)
	}
	if d <= 0 || d > time.Second {
		t.Fatalf("expected a sleep duration within one second, got %v", d)
	}
}

func TestNextSleepUnknownConnectionFails(t *testing.T) {
	s := New(newTestRegistry(t), slog.Default(), time.Second, time.Minute, 100)
	_, err := s.nextSleep(plan.Interval{Connection: "missing", Second: 1})
	if err == nil {
		t.Fatal("expected error for an interval bound to an unregistered connection")
	}
}
