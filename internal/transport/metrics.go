package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons reported by Metrics.Dropped.
const (
	DropEncode   = "encode"
	DropOversize = "oversize"
	DropClosed   = "closed"
	DropDelivery = "delivery"
	DropUnrouted = "unrouted"
)

// Metrics holds the transport's Prometheus metrics. A nil *Metrics records
// nothing.
type Metrics struct {
	Enqueued   *prometheus.CounterVec
	Dropped    *prometheus.CounterVec
	Batches    *prometheus.CounterVec
	Retries    prometheus.Counter
	QueueDepth prometheus.Gauge
}

// NewMetrics creates the transport metrics and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Enqueued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rdmini_transport_events_enqueued_total",
				Help: "Total number of records accepted into the queue",
			},
			[]string{"kind"},
		),
		Dropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rdmini_transport_events_dropped_total",
				Help: "Total number of records dropped before or during delivery",
			},
			[]string{"reason"},
		),
		Batches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rdmini_transport_batches_total",
				Help: "Total number of delivery requests by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),
		Retries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "rdmini_transport_retries_total",
				Help: "Total number of retried delivery attempts",
			},
		),
		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "rdmini_transport_queue_depth",
				Help: "Number of records waiting in the queue",
			},
		),
	}
}

func (m *Metrics) enqueued(kind string) {
	if m == nil {
		return
	}
	m.Enqueued.WithLabelValues(kind).Inc()
}

func (m *Metrics) dropped(reason string, n int) {
	if m == nil {
		return
	}
	m.Dropped.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) batch(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.Batches.WithLabelValues(endpoint, outcome).Inc()
}

func (m *Metrics) retried() {
	if m == nil {
		return
	}
	m.Retries.Inc()
}

func (m *Metrics) depth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}
