package health_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/health"
)

type fakeConns struct {
	names []string
	errs  map[string]error
}

func (f *fakeConns) ConnectionNames() []string { return f.names }

func (f *fakeConns) Ping(_ context.Context, name string) error { return f.errs[name] }

func newTestChecker(conns *fakeConns) (*health.Checker, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	logger := slog.Default()
	return health.NewChecker(conns, logger, reg), reg
}

func TestLiveness_AlwaysUp(t *testing.T) {
	c, _ := newTestChecker(&fakeConns{names: nil})

	result := c.Liveness(context.Background())
	if result.Status != "up" {
		t.Fatalf("expected status up, got %s", result.Status)
	}
	if result.Checks != nil {
		t.Fatalf("expected no checks, got %v", result.Checks)
	}
}

func TestReadiness_AllConnectionsUp(t *testing.T) {
	c, reg := newTestChecker(&fakeConns{names: []string{"warehouse"}})

	result := c.Readiness(context.Background())
	if result.Status != "up" {
		t.Fatalf("expected status up, got %s", result.Status)
	}
	check, ok := result.Checks["warehouse"]
	if !ok {
		t.Fatal("missing warehouse check")
	}
	if check.Status != "up" {
		t.Fatalf("expected warehouse up, got %s", check.Status)
	}

	gauge := testGauge(t, reg, "scheduler_health_check_up", "warehouse")
	if gauge != 1 {
		t.Fatalf("expected gauge 1, got %f", gauge)
	}
}

func TestReadiness_OneConnectionDown(t *testing.T) {
	c, reg := newTestChecker(&fakeConns{
		names: []string{"warehouse"},
		errs:  map[string]error{"warehouse": errors.New("connection refused")},
	})

	result := c.Readiness(context.Background())
	if result.Status != "down" {
		t.Fatalf("expected status down, got %s", result.Status)
	}
	check := result.Checks["warehouse"]
	if check.Status != "down" {
		t.Fatalf("expected warehouse down, got %s", check.Status)
	}
	if check.Error == "" {
		t.Fatal("expected error message")
	}

	gauge := testGauge(t, reg, "scheduler_health_check_up", "warehouse")
	if gauge != 0 {
		t.Fatalf("expected gauge 0, got %f", gauge)
	}
}

func TestReadiness_NoConnectionsIsDown(t *testing.T) {
	c, _ := newTestChecker(&fakeConns{names: nil})

	result := c.Readiness(context.Background())
	if result.Status != "down" {
		t.Fatalf("expected status down when registry has no connections, got %s", result.Status)
	}
}

func testGauge(t *testing.T, reg *prometheus.Registry, name, connLabel string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "connection" && lp.GetValue() == connLabel {
					return m.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s{connection=%q} not found", name, connLabel)
	return 0
}
