package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ConfigFileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8765" {
		t.Errorf("addr = %q, want :8765", cfg.Addr)
	}
	if cfg.Timing.TickInterval.Std() != 16*time.Millisecond {
		t.Errorf("tick_interval = %v, want 16ms", cfg.Timing.TickInterval.Std())
	}
	if cfg.Limits.QueueSize != 256 {
		t.Errorf("queue_size = %d, want 256", cfg.Limits.QueueSize)
	}
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
addr = "127.0.0.1:9000"
ops_addr = "127.0.0.1:9100"
log_level = "debug"
demo = true

[limits]
queue_size = 32

[timing]
tick_interval = "5ms"
handshake_timeout = "2s"
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9000" || cfg.OpsAddr != "127.0.0.1:9100" {
		t.Errorf("addrs = %q/%q", cfg.Addr, cfg.OpsAddr)
	}
	if !cfg.Demo {
		t.Error("demo not set")
	}
	if cfg.Limits.QueueSize != 32 {
		t.Errorf("queue_size = %d, want 32", cfg.Limits.QueueSize)
	}
	// Unset keys keep their defaults.
	if cfg.Limits.MaxFrameBytes != 50*1024*1024 {
		t.Errorf("max_frame_bytes = %d, want default", cfg.Limits.MaxFrameBytes)
	}
	if cfg.Timing.TickInterval.Std() != 5*time.Millisecond {
		t.Errorf("tick_interval = %v, want 5ms", cfg.Timing.TickInterval.Std())
	}
	if cfg.Timing.WriteTimeout.Std() != 10*time.Second {
		t.Errorf("write_timeout = %v, want default 10s", cfg.Timing.WriteTimeout.Std())
	}
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
addr = ":8765"
max_frame_bytes = 1024
`)
	_, err := LoadFile(path)
	if err == nil || !strings.Contains(err.Error(), "unknown keys") {
		t.Fatalf("err = %v, want unknown keys error", err)
	}
	if !strings.Contains(err.Error(), "max_frame_bytes") {
		t.Errorf("error %q does not name the bad key", err)
	}
}

func TestLoadFileRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `
[timing]
tick_interval = "soon"
`)
	if _, err := LoadFile(path); err == nil {
		t.Fatal("bad duration accepted")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"empty addr", func(c *Config) { c.Addr = "" }, false},
		{"bad level", func(c *Config) { c.LogLevel = "verbose" }, false},
		{"tiny frame limit", func(c *Config) { c.Limits.MaxFrameBytes = 100 }, false},
		{"zero queue", func(c *Config) { c.Limits.QueueSize = 0 }, false},
		{"zero budget", func(c *Config) { c.Timing.TickBudget = 0 }, false},
		{"negative tick", func(c *Config) { c.Timing.TickInterval = Duration(-time.Second) }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Fatal("invalid config accepted")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		cfg := Default()
		cfg.LogLevel = tt.in
		got, err := cfg.ParseLevel()
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestServerConfigConversion(t *testing.T) {
	cfg := Default()
	cfg.Addr = ":9999"
	cfg.OpsAddr = ":9998"
	cfg.Limits.QueueSize = 64
	cfg.Timing.TickBudget = 8

	sc := cfg.ServerConfig()
	if sc.Addr != ":9999" || sc.OpsAddr != ":9998" {
		t.Errorf("addrs = %q/%q", sc.Addr, sc.OpsAddr)
	}
	if sc.QueueSize != 64 || sc.TickBudget != 8 {
		t.Errorf("queue/budget = %d/%d, want 64/8", sc.QueueSize, sc.TickBudget)
	}
	if sc.TickInterval != 16*time.Millisecond {
		t.Errorf("tick interval = %v", sc.TickInterval)
	}
	if sc.Logger != nil || sc.Registry != nil {
		t.Error("conversion should leave logger and registry for the caller")
	}
}
