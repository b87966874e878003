package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the outbox relay.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	PendingDepth    prometheus.Gauge
	PublishedTotal  prometheus.Counter
	PublishFailures prometheus.Counter
	PublishDuration prometheus.Histogram
	BatchSize       prometheus.Histogram
	PurgedTotal     prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PendingDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "eventgate_outbox_pending_total",
			Help: "Current number of ledger entries not yet relayed",
		}),
		PublishedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "eventgate_outbox_published_total",
			Help: "Ledger entries relayed to Kafka",
		}),
		PublishFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "eventgate_outbox_publish_failures_total",
			Help: "Failed fetches or publishes; failed entries are retried on the next poll",
		}),
		PublishDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "eventgate_outbox_publish_duration_seconds",
			Help:    "Time taken to publish one ledger entry",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		BatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "eventgate_outbox_batch_size",
			Help:    "Entries fetched per non-empty poll",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),
		PurgedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "eventgate_outbox_purged_total",
			Help: "Relayed entries removed after the retention period",
		}),
	}
}

func (m *Metrics) SetPendingDepth(count int64) {
	if m == nil {
		return
	}
	m.PendingDepth.Set(float64(count))
}

func (m *Metrics) IncPublished() {
	if m == nil {
		return
	}
	m.PublishedTotal.Inc()
}

func (m *Metrics) IncPublishFailures() {
	if m == nil {
		return
	}
	m.PublishFailures.Inc()
}

func (m *Metrics) ObservePublishDuration(seconds float64) {
	if m == nil {
		return
	}
	m.PublishDuration.Observe(seconds)
}

func (m *Metrics) ObserveBatchSize(size int) {
	if m == nil {
		return
	}
	m.BatchSize.Observe(float64(size))
}

func (m *Metrics) AddPurged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.PurgedTotal.Add(float64(n))
}
