// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/segrecv/internal/core"
)

// Config represents the top-level configuration.
// Maps to the `segrecv:` root key in YAML.
type Config struct {
	Transport TransportConfig `mapstructure:"transport"`
	Job       JobConfig       `mapstructure:"job"`
	Replay    ReplayConfig    `mapstructure:"replay"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ─── Transport ───

// TransportConfig configures the live UDP source.
type TransportConfig struct {
	Listen       string `mapstructure:"listen"`        // Local bind address
	Remote       string `mapstructure:"remote"`        // Sender address; empty = accept from anyone, no hello
	HelloSize    int    `mapstructure:"hello_size"`    // Zero-filled hello datagram size; 0 = no hello
	ReadBuffer   int    `mapstructure:"read_buffer"`   // Max datagram size accepted
	PollInterval string `mapstructure:"poll_interval"` // Read deadline used to observe cancellation
}

// PollDuration returns the parsed poll interval.
func (t TransportConfig) PollDuration() time.Duration {
	d, err := time.ParseDuration(t.PollInterval)
	if err != nil {
		return 0
	}
	return d
}

// ─── Job ───

// JobConfig configures reassembly and output.
type JobConfig struct {
	ExpectedFiles int    `mapstructure:"expected_files"` // Distinct file ids per job
	OutputDir     string `mapstructure:"output_dir"`
	Progress      bool   `mapstructure:"progress"` // Print one dot per accepted packet
}

// ─── Replay ───

// ReplayConfig configures offline reassembly from a capture file.
type ReplayConfig struct {
	Port int `mapstructure:"port"` // UDP port filter; 0 = every UDP datagram
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"`  // debug / info / warn / error
	Format  string           `mapstructure:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains structured log output destinations.
type LogOutputsConfig struct {
	Console ConsoleOutputConfig `mapstructure:"console"`
	File    FileOutputConfig    `mapstructure:"file"`
}

// ConsoleOutputConfig selects the console stream.
type ConsoleOutputConfig struct {
	Stream string `mapstructure:"stream"` // stderr / stdout
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`  // MB
	MaxAgeDays int  `mapstructure:"max_age_days"` // Days
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `segrecv: ...`.
type configRoot struct {
	Segrecv Config `mapstructure:"segrecv"`
}

// Load loads configuration from path. An empty path yields the defaults,
// still subject to SEGRECV_* environment overrides
// (e.g. key "segrecv.job.output_dir" → env "SEGRECV_JOB_OUTPUT_DIR").
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Segrecv

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use "segrecv." prefix to match the YAML root wrapper. Every key is
// registered here so AutomaticEnv can see it during Unmarshal.
func setDefaults(v *viper.Viper) {
	// Transport defaults
	v.SetDefault("segrecv.transport.listen", "0.0.0.0:7077")
	v.SetDefault("segrecv.transport.remote", "127.0.0.1:6014")
	v.SetDefault("segrecv.transport.hello_size", 1028)
	v.SetDefault("segrecv.transport.read_buffer", 65535)
	v.SetDefault("segrecv.transport.poll_interval", "250ms")

	// Job defaults
	v.SetDefault("segrecv.job.expected_files", 3)
	v.SetDefault("segrecv.job.output_dir", ".")
	v.SetDefault("segrecv.job.progress", false)

	// Replay defaults
	v.SetDefault("segrecv.replay.port", 0)

	// Log defaults
	v.SetDefault("segrecv.log.level", "info")
	v.SetDefault("segrecv.log.format", "text")
	v.SetDefault("segrecv.log.outputs.console.stream", "stderr")
	v.SetDefault("segrecv.log.outputs.file.enabled", false)
	v.SetDefault("segrecv.log.outputs.file.path", "segrecv.log")
	v.SetDefault("segrecv.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("segrecv.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("segrecv.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("segrecv.log.outputs.file.rotation.compress", true)

	// Metrics defaults
	v.SetDefault("segrecv.metrics.enabled", false)
	v.SetDefault("segrecv.metrics.listen", ":9091")
	v.SetDefault("segrecv.metrics.path", "/metrics")
}

// ValidateAndApplyDefaults validates configuration and normalises values.
// Every returned error wraps core.ErrConfigInvalid.
func (cfg *Config) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("%w: invalid log level: %s (must be debug/info/warn/error)", core.ErrConfigInvalid, cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("%w: invalid log format: %s (must be json/text)", core.ErrConfigInvalid, cfg.Log.Format)
	}
	if s := cfg.Log.Outputs.Console.Stream; s != "stderr" && s != "stdout" {
		return fmt.Errorf("%w: invalid log console stream: %s (must be stderr/stdout)", core.ErrConfigInvalid, s)
	}

	// ── Job validation ──
	// File ids are one byte, so a job can never span more than 256 files.
	if cfg.Job.ExpectedFiles < 1 || cfg.Job.ExpectedFiles > 256 {
		return fmt.Errorf("%w: job.expected_files must be in 1..256, got %d", core.ErrConfigInvalid, cfg.Job.ExpectedFiles)
	}
	if cfg.Job.OutputDir == "" {
		cfg.Job.OutputDir = "."
	}

	// ── Transport validation ──
	if cfg.Transport.Listen == "" {
		return fmt.Errorf("%w: transport.listen is required", core.ErrConfigInvalid)
	}
	if cfg.Transport.HelloSize < 0 {
		return fmt.Errorf("%w: transport.hello_size must be >= 0, got %d", core.ErrConfigInvalid, cfg.Transport.HelloSize)
	}
	if cfg.Transport.ReadBuffer < 5 || cfg.Transport.ReadBuffer > 65535 {
		return fmt.Errorf("%w: transport.read_buffer must be in 5..65535, got %d", core.ErrConfigInvalid, cfg.Transport.ReadBuffer)
	}
	poll, err := time.ParseDuration(cfg.Transport.PollInterval)
	if err != nil || poll <= 0 {
		return fmt.Errorf("%w: transport.poll_interval %q is not a positive duration", core.ErrConfigInvalid, cfg.Transport.PollInterval)
	}

	// ── Replay validation ──
	if cfg.Replay.Port < 0 || cfg.Replay.Port > 65535 {
		return fmt.Errorf("%w: replay.port must be in 0..65535, got %d", core.ErrConfigInvalid, cfg.Replay.Port)
	}

	// ── Metrics validation ──
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return fmt.Errorf("%w: metrics.listen is required when metrics.enabled=true", core.ErrConfigInvalid)
	}

	return nil
}
