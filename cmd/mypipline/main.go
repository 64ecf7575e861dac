// Command mypipline is the plan daemon's entrypoint (spec §6): "run"
// starts the scheduler and admin HTTP surface against a directory of
// conn.toml/plan.toml/app.toml/scripts; "validate" loads and decodes that
// same directory without starting anything, for CI/pre-deploy checks.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/config"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/health"
	ctxlog "github.com/ErlanBelekov/dist-job-scheduler/internal/log"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/loader/tomlloader"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/metrics"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/registry"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/scheduler"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/script/luavm"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/script/pyvm"
	httptransport "github.com/ErlanBelekov/dist-job-scheduler/internal/transport/http"
)

func main() {
	root := &cobra.Command{
		Use:   "mypipline",
		Short: "Declarative data-pipeline scheduler",
	}

	var flags config.AppFlags

	run := &cobra.Command{
		Use:   "run",
		Short: "Start the plan daemon and admin HTTP surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(flags)
		},
	}
	run.Flags().StringVar(&flags.BaseDir, "base-dir", "", "directory holding conn.toml/plan.toml/app.toml/scripts")
	run.Flags().StringVar(&flags.Identifier, "identifier", "", "identifier this process logs and reports under")
	run.Flags().BoolVar(&flags.OnceLoad, "once-load", false, "cache conn.toml/plan.toml after the first read instead of re-reading on every reset")
	root.AddCommand(run)

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Load and decode conn.toml/plan.toml/app.toml without starting the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(flags)
		},
	}
	validate.Flags().StringVar(&flags.BaseDir, "base-dir", "", "directory holding conn.toml/plan.toml/app.toml/scripts")
	root.AddCommand(validate)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runValidate(flags config.AppFlags) error {
	flags.Identifier = "validate"
	if err := flags.Validate(); err != nil {
		return err
	}

	ldr := tomlloader.New(flags.BaseDir, true)

	if _, err := ldr.LoadConnections(); err != nil {
		return fmt.Errorf("conn.toml: %w", err)
	}
	if _, err := ldr.LoadPlans(); err != nil {
		return fmt.Errorf("plan.toml: %w", err)
	}
	raw, err := ldr.LoadAppConfig()
	if err != nil {
		return fmt.Errorf("app.toml: %w", err)
	}
	if _, err := config.DecodeAppConfig(raw); err != nil {
		return err
	}

	fmt.Println("ok")
	return nil
}

func runDaemon(flags config.AppFlags) error {
	if err := flags.Validate(); err != nil {
		return err
	}

	ldr := tomlloader.New(flags.BaseDir, flags.OnceLoad)

	raw, err := ldr.LoadAppConfig()
	if err != nil {
		return fmt.Errorf("app.toml: %w", err)
	}
	appCfg, err := config.DecodeAppConfig(raw)
	if err != nil {
		return err
	}

	logger := newLogger(flags, appCfg, parseLevel(appCfg.LogLevel)).With("identifier", flags.Identifier)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := registry.New(map[string]func(int) *registry.InterpreterPool{
		"lua":    func(maxSize int) *registry.InterpreterPool { return luavm.NewPool(appCfg.ScriptLib, maxSize) },
		"python": func(maxSize int) *registry.InterpreterPool { return pyvm.NewPool(appCfg.ScriptLib, appCfg.PyWorkerCount, maxSize) },
	})
	if err := reg.Initialize(ldr); err != nil {
		return fmt.Errorf("registry init: %w", err)
	}
	defer reg.Close()

	metrics.Register()
	metrics.ProcessStartTime.Set(float64(time.Now().Unix()))
	checker := health.NewChecker(reg, logger, prometheus.DefaultRegisterer)

	sched := scheduler.New(reg, logger, time.Duration(appCfg.TickSeconds)*time.Second, time.Duration(appCfg.ResetSeconds)*time.Second, appCfg.WorkerPoolSize)

	schedDone := make(chan error, 1)
	go func() { schedDone <- sched.Start(ctx) }()

	srv := &http.Server{
		Addr:    ":" + appCfg.MetricsPort,
		Handler: httptransport.NewRouter(logger, reg, checker),
	}
	go func() {
		logger.Info("admin http surface started", "port", appCfg.MetricsPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin http surface", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin http surface shutdown", "error", err)
	}

	if err := <-schedDone; err != nil {
		logger.Error("scheduler stopped with error", "error", err)
	}
	metrics.ProcessShutdownsTotal.Inc()
	return nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newLogger builds the process logger per app.toml's log_type. "console"
// writes tinted, human-readable lines to stdout; "file" writes plain JSON
// lines to log/<identifier>/mypipline.log under --base-dir, rotated by
// lumberjack once log_max_size_mb is exceeded.
func newLogger(flags config.AppFlags, appCfg config.AppConfig, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if appCfg.LogType == "file" {
		logDir := filepath.Join(flags.BaseDir, "log", flags.Identifier)
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "mkdir %s: %v\n", logDir, err)
		}
		writer := &lumberjack.Logger{
			Filename: filepath.Join(logDir, "mypipline.log"),
			MaxSize:  appCfg.LogMaxSizeMB,
		}
		inner = slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: level})
	} else {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
