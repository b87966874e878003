package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scan outcomes recorded against ScansTotal.
const (
	OutcomeApplied     = "applied"
	OutcomeAlreadyDone = "already_done"
	OutcomeBlocked     = "blocked"
	OutcomeNotFound    = "not_found"
	OutcomeStoreError  = "store_error"
)

// Metrics holds Prometheus collectors for gate and distribution scans.
type Metrics struct {
	ScansTotal      *prometheus.CounterVec
	MutationLatency *prometheus.HistogramVec
	StatusLookups   *prometheus.CounterVec
}

// New registers checkpoint collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ScansTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventgate_checkpoint_scans_total",
			Help: "Entry and distribution update attempts, labeled by checkpoint and outcome",
		}, []string{"checkpoint", "outcome"}),
		MutationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eventgate_checkpoint_mutation_latency_seconds",
			Help:    "Latency of per-token store transactions",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"checkpoint"}),
		StatusLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventgate_checkpoint_status_lookups_total",
			Help: "Status queries, labeled by whether the token was known",
		}, []string{"found"}),
	}
}

func (m *Metrics) IncScan(checkpoint, outcome string) {
	if m == nil {
		return
	}
	m.ScansTotal.WithLabelValues(checkpoint, outcome).Inc()
}

func (m *Metrics) ObserveMutation(checkpoint string, seconds float64) {
	if m == nil {
		return
	}
	m.MutationLatency.WithLabelValues(checkpoint).Observe(seconds)
}

func (m *Metrics) IncStatusLookup(found bool) {
	if m == nil {
		return
	}
	label := "false"
	if found {
		label = "true"
	}
	m.StatusLookups.WithLabelValues(label).Inc()
}
