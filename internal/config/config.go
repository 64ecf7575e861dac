// Package config holds the two configuration layers named in spec §6: CLI
// flags parsed by cobra (AppFlags) and the app.toml-decoded process
// settings (AppConfig), grounded on the teacher's config/config.go
// (env-parse-then-validate) but retargeted at TOML + named CLI flags since
// this process takes its identity from --base-dir/--identifier, not env vars.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// AppFlags are the command-line flags accepted by "mypipline run"
// (spec §6): the directory holding conn.toml/plan.toml/app.toml/scripts,
// and the identifier this process logs/reports under.
type AppFlags struct {
	BaseDir    string `validate:"required"`
	Identifier string `validate:"required"`
	OnceLoad   bool
}

// Validate runs struct-tag validation over the flags, mirroring the
// teacher's validator.New().Struct(cfg) call.
func (f AppFlags) Validate() error {
	if err := validator.New().Struct(f); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

// AppConfig is app.toml (spec's supplemented ambient settings, grounded on
// original_source's pipline/types/src/config/app.rs AppConfig).
type AppConfig struct {
	LogLevel       string `toml:"log_level" validate:"required,oneof=debug info warn error"`
	LogType        string `toml:"log_type" validate:"omitempty,oneof=console file"`
	LogMaxSizeMB   int    `toml:"log_max_size_mb" validate:"min=0"`
	ScriptLib      string `toml:"script_lib"`
	MetricsPort    string `toml:"metrics_port"`
	TickSeconds    int    `toml:"tick_seconds" validate:"min=1"`
	ResetSeconds   int    `toml:"reset_seconds" validate:"min=1"`
	PyWorkerCount  int    `toml:"python_worker_count" validate:"min=1"`
	WorkerPoolSize int    `toml:"worker_pool_size" validate:"min=1"`
}

// Default returns the fallback AppConfig used when app.toml omits a field,
// matching the daemon cadence spec §4.3 specifies (1s tick / 60s reset).
func Default() AppConfig {
	return AppConfig{
		LogLevel:       "info",
		LogType:        "console",
		LogMaxSizeMB:   100,
		MetricsPort:    "9090",
		TickSeconds:    1,
		ResetSeconds:   60,
		PyWorkerCount:  100,
		WorkerPoolSize: 100,
	}
}

// DecodeAppConfig parses app.toml bytes over the defaults and validates
// the result.
func DecodeAppConfig(raw []byte) (AppConfig, error) {
	cfg := Default()
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decode app.toml: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return AppConfig{}, fmt.Errorf("invalid app.toml: %w", err)
	}
	return cfg, nil
}
