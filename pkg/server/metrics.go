package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the server's Prometheus instruments.
type metrics struct {
	connectionsTotal  prometheus.Counter
	activeConnections prometheus.Gauge
	handshakeFailures prometheus.Counter

	requestsTotal   *prometheus.CounterVec
	requestDuration prometheus.Histogram

	queueDepth    prometheus.Gauge
	queueRejected prometheus.Counter

	pushesSent     prometheus.Counter
	binaryBytesOut prometheus.Counter
	binaryBytesIn  prometheus.Counter
	importsTotal   *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "scenewire",
			Name:      "connections_total",
			Help:      "Total number of accepted scene connections",
		}),

		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "scenewire",
			Name:      "active_connections",
			Help:      "Number of currently connected clients",
		}),

		handshakeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "scenewire",
			Name:      "handshake_failures_total",
			Help:      "Total number of connections dropped during the upgrade handshake",
		}),

		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scenewire",
			Name:      "requests_total",
			Help:      "Total number of dispatched request envelopes by outcome",
		}, []string{"status"}),

		requestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "scenewire",
			Name:      "request_duration_seconds",
			Help:      "Request latency from arrival to response write, including queue time",
			Buckets:   prometheus.DefBuckets,
		}),

		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "scenewire",
			Name:      "queue_depth",
			Help:      "Jobs waiting in the host work queue",
		}),

		queueRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "scenewire",
			Name:      "queue_rejected_total",
			Help:      "Total number of requests refused because the work queue was full",
		}),

		pushesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "scenewire",
			Name:      "pushes_sent_total",
			Help:      "Total number of push frames written to clients",
		}),

		binaryBytesOut: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "scenewire",
			Name:      "binary_bytes_out_total",
			Help:      "Total binary payload bytes sent to clients",
		}),

		binaryBytesIn: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "scenewire",
			Name:      "binary_bytes_in_total",
			Help:      "Total binary payload bytes received from clients",
		}),

		importsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scenewire",
			Name:      "imports_total",
			Help:      "Total number of inbound binary payloads by kind",
		}, []string{"kind"}),
	}
}
