package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the audit publisher.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	QueueDepth      prometheus.Gauge
	EventsEnqueued  prometheus.Counter
	EventsDropped   prometheus.Counter
	PersistDuration prometheus.Histogram
	PersistFailures prometheus.Counter
	EventsProcessed prometheus.Counter
	SinkFailures    prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "eventgate_audit_queue_depth",
			Help: "Current number of events in the audit publisher queue",
		}),
		EventsEnqueued: f.NewCounter(prometheus.CounterOpts{
			Name: "eventgate_audit_events_enqueued_total",
			Help: "Audit events accepted into the async buffer",
		}),
		EventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "eventgate_audit_events_dropped_total",
			Help: "Audit events dropped because the buffer was full",
		}),
		PersistDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "eventgate_audit_persist_duration_seconds",
			Help:    "Time taken to persist an audit event to the store",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "eventgate_audit_persist_failures_total",
			Help: "Audit events the store rejected",
		}),
		EventsProcessed: f.NewCounter(prometheus.CounterOpts{
			Name: "eventgate_audit_events_processed_total",
			Help: "Audit events persisted",
		}),
		SinkFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "eventgate_audit_sink_failures_total",
			Help: "Best-effort sink sends that failed",
		}),
	}
}

func (m *Metrics) IncEnqueued() {
	if m == nil {
		return
	}
	m.EventsEnqueued.Inc()
	m.QueueDepth.Inc()
}

func (m *Metrics) DecQueueDepth() {
	if m == nil {
		return
	}
	m.QueueDepth.Dec()
}

func (m *Metrics) IncDropped() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
}

// ObservePersist records one store write and whether it succeeded.
func (m *Metrics) ObservePersist(seconds float64, err error) {
	if m == nil {
		return
	}
	m.PersistDuration.Observe(seconds)
	if err != nil {
		m.PersistFailures.Inc()
		return
	}
	m.EventsProcessed.Inc()
}

func (m *Metrics) IncSinkFailures() {
	if m == nil {
		return
	}
	m.SinkFailures.Inc()
}
