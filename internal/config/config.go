package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/scenewire/scenewire/pkg/server"
	"github.com/scenewire/scenewire/pkg/ws"
)

// ConfigFileName is the name of the configuration file.
const ConfigFileName = "scenewire.toml"

// Duration decodes TOML duration strings like "10s" or "16ms".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the scenewire.toml schema.
type Config struct {
	// Addr is the scene listener address.
	Addr string `toml:"addr"`

	// OpsAddr is the operations listener address; empty disables it.
	OpsAddr string `toml:"ops_addr"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`

	// Demo preloads the built-in demo scene on startup.
	Demo bool `toml:"demo"`

	// Limits bounds frame sizes and queueing.
	Limits LimitsConfig `toml:"limits"`

	// Timing holds the server's timeouts and tick settings.
	Timing TimingConfig `toml:"timing"`
}

// LimitsConfig bounds per-connection and queue resources.
type LimitsConfig struct {
	// MaxFrameBytes caps inbound frame payloads.
	MaxFrameBytes int64 `toml:"max_frame_bytes"`

	// QueueSize is the host work queue depth.
	QueueSize int `toml:"queue_size"`
}

// TimingConfig holds timeouts and the host tick.
type TimingConfig struct {
	// HandshakeTimeout bounds the upgrade handshake.
	HandshakeTimeout Duration `toml:"handshake_timeout"`

	// WriteTimeout bounds each outbound frame write.
	WriteTimeout Duration `toml:"write_timeout"`

	// TickInterval is the host loop's tick period.
	TickInterval Duration `toml:"tick_interval"`

	// TickBudget is the maximum jobs executed per tick.
	TickBudget int `toml:"tick_budget"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Addr:     ":8765",
		OpsAddr:  "",
		LogLevel: "info",
		Demo:     false,
		Limits: LimitsConfig{
			MaxFrameBytes: ws.DefaultMaxPayload,
			QueueSize:     256,
		},
		Timing: TimingConfig{
			HandshakeTimeout: Duration(10 * time.Second),
			WriteTimeout:     Duration(10 * time.Second),
			TickInterval:     Duration(16 * time.Millisecond),
			TickBudget:       16,
		},
	}
}

// Load reads ConfigFileName from dir. A missing file yields the
// defaults, not an error.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads configuration from path. Keys absent from the file
// keep their defaults; unknown keys are an error.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the server cannot run
// with.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr must not be empty")
	}
	if _, err := c.ParseLevel(); err != nil {
		return err
	}
	if c.Limits.MaxFrameBytes < 1024 {
		return fmt.Errorf("limits.max_frame_bytes %d too small, need at least 1024", c.Limits.MaxFrameBytes)
	}
	if c.Limits.QueueSize < 1 {
		return fmt.Errorf("limits.queue_size must be at least 1")
	}
	if c.Timing.TickBudget < 1 {
		return fmt.Errorf("timing.tick_budget must be at least 1")
	}
	for name, d := range map[string]Duration{
		"timing.handshake_timeout": c.Timing.HandshakeTimeout,
		"timing.write_timeout":     c.Timing.WriteTimeout,
		"timing.tick_interval":     c.Timing.TickInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

// ParseLevel converts LogLevel into a slog.Level.
func (c *Config) ParseLevel() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log_level %q not one of debug, info, warn, error", c.LogLevel)
	}
}

// ServerConfig converts the file configuration into the server's
// runtime configuration. Logger and metrics registry are left for the
// caller to fill.
func (c *Config) ServerConfig() *server.Config {
	return &server.Config{
		Addr:             c.Addr,
		OpsAddr:          c.OpsAddr,
		HandshakeTimeout: c.Timing.HandshakeTimeout.Std(),
		WriteTimeout:     c.Timing.WriteTimeout.Std(),
		MaxFrameBytes:    c.Limits.MaxFrameBytes,
		QueueSize:        c.Limits.QueueSize,
		TickInterval:     c.Timing.TickInterval.Std(),
		TickBudget:       c.Timing.TickBudget,
	}
}
