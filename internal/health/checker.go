// Package health exposes liveness/readiness checks for the admin HTTP
// surface (spec §5.x), adapted from the teacher's Pinger-based Checker to
// poll every connection the registry currently holds an executor pool for,
// instead of a single hardcoded postgres dependency.
package health

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ConnectionPinger is satisfied by executor.Resource: anything a
// registry-backed connection pool can hand out.
type ConnectionPinger interface {
	CurrentTime(ctx context.Context) (time.Duration, error)
}

// ConnectionChecker is the subset of *registry.Registry the health checker
// depends on, kept narrow to avoid an import cycle with internal/registry.
type ConnectionChecker interface {
	ConnectionNames() []string
	Ping(ctx context.Context, name string) error
}

// CheckResult represents the health of a single dependency.
type CheckResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthResult is the top-level health response.
type HealthResult struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Checker verifies that every registered connection is reachable.
type Checker struct {
	reg    ConnectionChecker
	logger *slog.Logger
	gauge  *prometheus.GaugeVec
}

// NewChecker creates a health checker and registers its Prometheus gauge.
func NewChecker(reg ConnectionChecker, logger *slog.Logger, promReg prometheus.Registerer) *Checker {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "scheduler",
		Name:      "health_check_up",
		Help:      "Whether a registered connection is reachable. 1 = up, 0 = down.",
	}, []string{"connection"})
	promReg.MustRegister(gauge)

	return &Checker{
		reg:    reg,
		logger: logger.With("component", "health"),
		gauge:  gauge,
	}
}

// Liveness returns a simple "up" response if the process is running.
func (c *Checker) Liveness(_ context.Context) HealthResult {
	return HealthResult{Status: "up"}
}

// Readiness pings every known connection and reports per-connection status.
// An empty connection set (registry not yet initialized) reports "down".
func (c *Checker) Readiness(ctx context.Context) HealthResult {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	names := c.reg.ConnectionNames()
	result := HealthResult{
		Status: "up",
		Checks: make(map[string]CheckResult, len(names)),
	}

	if len(names) == 0 {
		result.Status = "down"
		return result
	}

	for _, name := range names {
		if err := c.reg.Ping(checkCtx, name); err != nil {
			c.logger.Warn("connection health check failed", "connection", name, "error", err)
			result.Status = "down"
			result.Checks[name] = CheckResult{Status: "down", Error: err.Error()}
			c.gauge.WithLabelValues(name).Set(0)
			continue
		}
		result.Checks[name] = CheckResult{Status: "up"}
		c.gauge.WithLabelValues(name).Set(1)
	}

	return result
}
