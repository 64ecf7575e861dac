// Package metrics holds the process's Prometheus instrumentation,
// repurposed from the teacher's job-queue/reaper metric set onto the
// plan-tick/chain-step/script-run domain (spec §5.x's /metrics surface).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Plan dispatch

	PlanDispatchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "plan_dispatch_duration_seconds",
		Help:      "Duration of one plan dispatch attempt (chain run or script run).",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"plan", "outcome"})

	PlanDispatchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "plan_dispatch_total",
		Help:      "Total plan dispatch attempts, by outcome.",
	}, []string{"plan", "outcome"})

	PlanSkippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "plan_skipped_total",
		Help:      "Total ticks skipped because the previous run was still in flight or the dispatch worker pool was full.",
	}, []string{"plan"})

	PlanRunsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scheduler",
		Name:      "plan_runs_in_flight",
		Help:      "Number of plan runs currently dispatching.",
	})

	// Chain engine

	ChainStepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "chain_step_duration_seconds",
		Help:      "Duration of one chain step's Execute call.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"connection"})

	ChainStepFanOut = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "chain_step_fan_out_rows",
		Help:      "Number of rows a chain step fanned out over.",
		Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 1000},
	}, []string{"step"})

	// Script host

	ScriptRunDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "script_run_duration_seconds",
		Help:      "Duration of one script.Runtime.Run call.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"lang", "outcome"})

	ScriptRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "script_runs_total",
		Help:      "Total script runs, by language and outcome.",
	}, []string{"lang", "outcome"})

	// Registry

	RegistryResetTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "registry_reset_total",
		Help:      "Total registry.Reset() calls.",
	})

	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scheduler",
		Name:      "connections_active",
		Help:      "Number of connections the registry currently holds an executor pool for.",
	})

	// Process lifecycle

	ProcessStartTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scheduler",
		Name:      "process_start_time_seconds",
		Help:      "Unix timestamp when the scheduler process started.",
	})

	ProcessShutdownsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "process_shutdowns_total",
		Help:      "Number of times the process has shut down cleanly.",
	})

	// Admin HTTP surface

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "http_request_duration_seconds",
		Help:      "Admin HTTP surface request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "http_requests_total",
		Help:      "Total admin HTTP surface requests.",
	}, []string{"method", "path", "status"})
)

// Register registers every collector against the default registry. Callers
// wiring a private prometheus.Registerer should register the vars
// individually instead.
func Register() {
	prometheus.MustRegister(
		PlanDispatchDuration,
		PlanDispatchTotal,
		PlanSkippedTotal,
		PlanRunsInFlight,
		ChainStepDuration,
		ChainStepFanOut,
		ScriptRunDuration,
		ScriptRunsTotal,
		RegistryResetTotal,
		ConnectionsActive,
		ProcessStartTime,
		ProcessShutdownsTotal,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

// NewServer builds a standalone metrics-only HTTP server, for deployments
// that want /metrics off the main admin mux. cmd/mypipline doesn't call this:
// its admin router already mounts /metrics alongside /plans and /healthz, so
// this is here for topologies that split metrics onto their own port/process.
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}
