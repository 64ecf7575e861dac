package registry_test

import (
	"testing"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/apperr"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/plan"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/registry"
)

type fakeLoader struct {
	conns map[string]plan.ConnectionInfo
	plans map[string]plan.Plan
}

func (f *fakeLoader) LoadAppConfig() ([]byte, error) { return nil, nil }
func (f *fakeLoader) LoadConnections() (map[string]plan.ConnectionInfo, error) {
	return f.conns, nil
}
func (f *fakeLoader) LoadPlans() (map[string]plan.Plan, error) { return f.plans, nil }
func (f *fakeLoader) LoadScriptSource(file string) (string, error) { return "", nil }

func newTestLoader() *fakeLoader {
	return &fakeLoader{
		conns: map[string]plan.ConnectionInfo{
			"cmdconn": {Name: "cmdconn", Type: "cmd", MaxSize: 2, Addr: "/bin/sh"},
		},
		plans: map[string]plan.Plan{
			"p1": {Name: "p1", Type: "query", Enable: true, Interval: plan.Interval{Second: 5}},
		},
	}
}

func TestInitializeTwiceFails(t *testing.T) {
	r := registry.New(nil)
	ldr := newTestLoader()

	if err := r.Initialize(ldr); err != nil {
		t.Fatalf("first Initialize: %v", err)
	}
	err := r.Initialize(ldr)
	if !apperr.Is(err, apperr.KindAlreadyInitialized) {
		t.Fatalf("want KindAlreadyInitialized, got %v", err)
	}
}

func TestGetExecutorPoolBeforeInitFails(t *testing.T) {
	r := registry.New(nil)
	_, err := r.GetExecutorPool("cmdconn")
	if !apperr.Is(err, apperr.KindNotInitialized) {
		t.Fatalf("want KindNotInitialized, got %v", err)
	}
}

func TestResetPreservesExistingPoolIdentity(t *testing.T) {
	r := registry.New(nil)
	ldr := newTestLoader()
	if err := r.Initialize(ldr); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	before, err := r.GetExecutorPool("cmdconn")
	if err != nil {
		t.Fatalf("GetExecutorPool: %v", err)
	}

	if err := r.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	after, err := r.GetExecutorPool("cmdconn")
	if err != nil {
		t.Fatalf("GetExecutorPool after reset: %v", err)
	}
	if before != after {
		t.Fatalf("reset replaced an existing pool's identity")
	}
}

func TestResetDropsRemovedPlans(t *testing.T) {
	r := registry.New(nil)
	ldr := newTestLoader()
	if err := r.Initialize(ldr); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	ldr.plans = map[string]plan.Plan{
		"p2": {Name: "p2", Type: "query", Enable: true, Interval: plan.Interval{Second: 1}},
	}
	if err := r.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	plans, err := r.Plans()
	if err != nil {
		t.Fatalf("Plans: %v", err)
	}
	if _, ok := plans["p1"]; ok {
		t.Fatalf("expected p1 to be dropped after reset")
	}
	if _, ok := plans["p2"]; !ok {
		t.Fatalf("expected p2 to be present after reset")
	}
}

func TestPlansExcludesDisabled(t *testing.T) {
	r := registry.New(nil)
	ldr := newTestLoader()
	ldr.plans["p2"] = plan.Plan{Name: "p2", Type: "query", Enable: false, Interval: plan.Interval{Second: 5}}
	if err := r.Initialize(ldr); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	plans, err := r.Plans()
	if err != nil {
		t.Fatalf("Plans: %v", err)
	}
	if _, ok := plans["p2"]; ok {
		t.Fatalf("expected disabled plan p2 to be excluded from the snapshot")
	}
	if _, ok := plans["p1"]; !ok {
		t.Fatalf("expected enabled plan p1 to remain present")
	}
}

func TestResetDropsPlanDisabledSinceLastLoad(t *testing.T) {
	r := registry.New(nil)
	ldr := newTestLoader()
	if err := r.Initialize(ldr); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	ldr.plans["p1"] = plan.Plan{Name: "p1", Type: "query", Enable: false, Interval: plan.Interval{Second: 5}}
	if err := r.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	plans, err := r.Plans()
	if err != nil {
		t.Fatalf("Plans: %v", err)
	}
	if _, ok := plans["p1"]; ok {
		t.Fatalf("expected p1 to be dropped once disabled, even though reset still saw it")
	}
}

func TestGetExecutorPoolUnknownConnection(t *testing.T) {
	r := registry.New(nil)
	ldr := newTestLoader()
	if err := r.Initialize(ldr); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	_, err := r.GetExecutorPool("does-not-exist")
	if !apperr.Is(err, apperr.KindNoData) {
		t.Fatalf("want KindNoData, got %v", err)
	}
}
