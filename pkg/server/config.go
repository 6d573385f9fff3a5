package server

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/scenewire/scenewire/pkg/ws"
)

// Config holds configuration for the scene server.
type Config struct {
	// Addr is the TCP address the scene listener binds
	// (e.g. ":8765" or "127.0.0.1:0").
	// Default: ":8765".
	Addr string

	// OpsAddr is the address of the HTTP operations listener serving
	// /healthz and /metrics. Empty disables the listener.
	// Default: "" (disabled).
	OpsAddr string

	// HandshakeTimeout bounds the upgrade handshake on a fresh
	// connection. Default: 10 seconds.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds each outbound frame write.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// MaxFrameBytes caps inbound frame payloads. Oversized frames
	// close the connection. Default: ws.DefaultMaxPayload (50MB).
	MaxFrameBytes int64

	// QueueSize is the host work queue depth. Requests arriving while
	// the queue is full are refused with a busy error.
	// Default: 256.
	QueueSize int

	// TickInterval is the host loop's tick period.
	// Default: 16ms.
	TickInterval time.Duration

	// TickBudget is the maximum number of queued jobs executed per
	// tick. Default: 16.
	TickBudget int

	// RawFileHandler receives raw file uploads pushed by clients.
	// Nil means uploads are logged and discarded.
	RawFileHandler func(name string, data []byte) error

	// Logger receives server logs.
	// Default: slog.Default().
	Logger *slog.Logger

	// Registry receives the server's Prometheus metrics.
	// Default: prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:             ":8765",
		OpsAddr:          "",
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		MaxFrameBytes:    ws.DefaultMaxPayload,
		QueueSize:        256,
		TickInterval:     16 * time.Millisecond,
		TickBudget:       16,
		Logger:           nil,
		Registry:         prometheus.DefaultRegisterer,
	}
}

// withDefaults fills unset fields from DefaultConfig.
func (c *Config) withDefaults() *Config {
	if c == nil {
		return DefaultConfig()
	}
	out := *c
	defaults := DefaultConfig()
	if out.Addr == "" {
		out.Addr = defaults.Addr
	}
	if out.HandshakeTimeout == 0 {
		out.HandshakeTimeout = defaults.HandshakeTimeout
	}
	if out.WriteTimeout == 0 {
		out.WriteTimeout = defaults.WriteTimeout
	}
	if out.MaxFrameBytes == 0 {
		out.MaxFrameBytes = defaults.MaxFrameBytes
	}
	if out.QueueSize == 0 {
		out.QueueSize = defaults.QueueSize
	}
	if out.TickInterval == 0 {
		out.TickInterval = defaults.TickInterval
	}
	if out.TickBudget == 0 {
		out.TickBudget = defaults.TickBudget
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	if out.Registry == nil {
		out.Registry = defaults.Registry
	}
	return &out
}
