package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"firestige.xyz/segrecv/internal/core"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return configPath
}

func TestLoadValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
segrecv:
  transport:
    listen: "127.0.0.1:9000"
    remote: "127.0.0.1:9001"
    hello_size: 16
    read_buffer: 2048
    poll_interval: "100ms"
  job:
    expected_files: 2
    output_dir: "/tmp/out"
    progress: true
  replay:
    port: 6014
  log:
    level: "DEBUG"
    format: "json"
    outputs:
      console:
        stream: "stdout"
  metrics:
    enabled: true
    listen: "127.0.0.1:9191"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Transport.Listen != "127.0.0.1:9000" {
		t.Errorf("Expected listen 127.0.0.1:9000, got %s", cfg.Transport.Listen)
	}
	if cfg.Transport.Remote != "127.0.0.1:9001" {
		t.Errorf("Expected remote 127.0.0.1:9001, got %s", cfg.Transport.Remote)
	}
	if cfg.Transport.HelloSize != 16 {
		t.Errorf("Expected hello_size 16, got %d", cfg.Transport.HelloSize)
	}
	if cfg.Transport.ReadBuffer != 2048 {
		t.Errorf("Expected read_buffer 2048, got %d", cfg.Transport.ReadBuffer)
	}
	if cfg.Transport.PollDuration() != 100*time.Millisecond {
		t.Errorf("Expected poll interval 100ms, got %v", cfg.Transport.PollDuration())
	}
	if cfg.Job.ExpectedFiles != 2 {
		t.Errorf("Expected expected_files 2, got %d", cfg.Job.ExpectedFiles)
	}
	if cfg.Job.OutputDir != "/tmp/out" {
		t.Errorf("Expected output_dir /tmp/out, got %s", cfg.Job.OutputDir)
	}
	if !cfg.Job.Progress {
		t.Error("Expected progress true")
	}
	if cfg.Replay.Port != 6014 {
		t.Errorf("Expected replay port 6014, got %d", cfg.Replay.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.Log.Level)
	}
	if cfg.Log.Outputs.Console.Stream != "stdout" {
		t.Errorf("Expected console stream stdout, got %s", cfg.Log.Outputs.Console.Stream)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Listen != "127.0.0.1:9191" {
		t.Errorf("Expected metrics enabled on 127.0.0.1:9191, got %+v", cfg.Metrics)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Expected default metrics path /metrics, got %s", cfg.Metrics.Path)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}

	if cfg.Transport.Listen != "0.0.0.0:7077" {
		t.Errorf("Expected default listen 0.0.0.0:7077, got %s", cfg.Transport.Listen)
	}
	if cfg.Transport.Remote != "127.0.0.1:6014" {
		t.Errorf("Expected default remote 127.0.0.1:6014, got %s", cfg.Transport.Remote)
	}
	if cfg.Transport.HelloSize != 1028 {
		t.Errorf("Expected default hello_size 1028, got %d", cfg.Transport.HelloSize)
	}
	if cfg.Job.ExpectedFiles != 3 {
		t.Errorf("Expected default expected_files 3, got %d", cfg.Job.ExpectedFiles)
	}
	if cfg.Job.OutputDir != "." {
		t.Errorf("Expected default output_dir ., got %s", cfg.Job.OutputDir)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Expected default log info/text, got %s/%s", cfg.Log.Level, cfg.Log.Format)
	}
	if cfg.Metrics.Enabled {
		t.Error("Expected metrics disabled by default")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	if err == nil {
		t.Error("Expected error for missing config file, got nil")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	configPath := writeConfig(t, `
segrecv:
  log:
    level: "info"
  job:
    output_dir: "from-file"
`)

	t.Setenv("SEGRECV_LOG_LEVEL", "debug")
	t.Setenv("SEGRECV_JOB_EXPECTED_FILES", "5")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level debug from env var, got %s", cfg.Log.Level)
	}
	if cfg.Job.ExpectedFiles != 5 {
		t.Errorf("Expected expected_files 5 from env var, got %d", cfg.Job.ExpectedFiles)
	}
	if cfg.Job.OutputDir != "from-file" {
		t.Errorf("Expected output_dir from file, got %s", cfg.Job.OutputDir)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"log level", "segrecv:\n  log:\n    level: verbose\n"},
		{"log format", "segrecv:\n  log:\n    format: xml\n"},
		{"console stream", "segrecv:\n  log:\n    outputs:\n      console:\n        stream: syslog\n"},
		{"expected files zero", "segrecv:\n  job:\n    expected_files: 0\n"},
		{"expected files too many", "segrecv:\n  job:\n    expected_files: 257\n"},
		{"empty listen", "segrecv:\n  transport:\n    listen: \"\"\n"},
		{"negative hello", "segrecv:\n  transport:\n    hello_size: -1\n"},
		{"tiny read buffer", "segrecv:\n  transport:\n    read_buffer: 4\n"},
		{"bad poll interval", "segrecv:\n  transport:\n    poll_interval: soon\n"},
		{"replay port", "segrecv:\n  replay:\n    port: 70000\n"},
		{"metrics without listen", "segrecv:\n  metrics:\n    enabled: true\n    listen: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatalf("Expected validation error, got nil")
			}
			if !errors.Is(err, core.ErrConfigInvalid) {
				t.Errorf("Expected ErrConfigInvalid, got %v", err)
			}
		})
	}
}

func TestPollDurationInvalid(t *testing.T) {
	tc := TransportConfig{PollInterval: "nope"}
	if tc.PollDuration() != 0 {
		t.Errorf("Expected zero duration for invalid interval, got %v", tc.PollDuration())
	}
}
