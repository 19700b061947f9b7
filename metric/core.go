package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the core ingestion pipeline metrics shared across ingress
// surfaces (transport and API paths report through the same counters, labelled
// by source).
type Metrics struct {
	MessagesReceived   *prometheus.CounterVec // by source
	MessagesAccepted   *prometheus.CounterVec // by source, class
	MessagesRejected   *prometheus.CounterVec // by source, reason
	MessagesDropped    prometheus.Counter     // unrecognized topics, transport only
	ProcessingDuration *prometheus.HistogramVec
	StoreErrors        prometheus.Counter
	BrokerConnected    prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all core pipeline metrics
func NewMetrics() *Metrics {
	return &Metrics{
		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "meshtel",
				Subsystem: "ingest",
				Name:      "messages_received_total",
				Help:      "Total number of inbound messages received",
			},
			[]string{"source"},
		),

		MessagesAccepted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "meshtel",
				Subsystem: "ingest",
				Name:      "messages_accepted_total",
				Help:      "Total number of messages validated and persisted",
			},
			[]string{"source", "class"},
		),

		MessagesRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "meshtel",
				Subsystem: "ingest",
				Name:      "messages_rejected_total",
				Help:      "Total number of messages rejected with a structured outcome",
			},
			[]string{"source", "reason"},
		),

		MessagesDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "meshtel",
				Subsystem: "ingest",
				Name:      "messages_dropped_total",
				Help:      "Messages on unrecognized topics, dropped as a no-op",
			},
		),

		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "meshtel",
				Subsystem: "ingest",
				Name:      "processing_duration_seconds",
				Help:      "Per-message pipeline processing duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"source"},
		),

		StoreErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "meshtel",
				Subsystem: "store",
				Name:      "errors_total",
				Help:      "Reading store failures (infrastructure faults, not rejections)",
			},
		),

		BrokerConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "meshtel",
				Subsystem: "mqtt",
				Name:      "broker_connected",
				Help:      "Whether the MQTT broker connection is up (1) or down (0)",
			},
		),
	}
}
