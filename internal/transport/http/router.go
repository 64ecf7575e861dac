// Package httptransport wires the read-only admin HTTP surface (spec
// §5.x): liveness/readiness, metrics and a plan snapshot for operators
// reaching the process over a private network. There is no auth
// middleware here — unlike the teacher, this domain has no end-user
// identity to gate (see DESIGN.md for the dropped JWT/email stack).
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	sloggin "github.com/samber/slog-gin"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/health"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/transport/http/handler"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/transport/http/middleware"
)

// NewRouter builds the admin gin.Engine. lister is typically a
// *registry.Registry; checker is built from the same registry by the
// caller's wiring.
func NewRouter(logger *slog.Logger, lister handler.PlanLister, checker *health.Checker) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, checker.Liveness(c.Request.Context()))
	})

	r.GET("/readyz", func(c *gin.Context) {
		result := checker.Readiness(c.Request.Context())
		status := http.StatusOK
		if result.Status != "up" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, result)
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/plans", handler.Plans(lister))

	return r
}
