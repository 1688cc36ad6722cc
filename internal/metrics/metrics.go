package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for document and process mutations.
type Metrics struct {
	// Proxy operations by op, role and result (ok, rejected, noop, error)
	Mutations *prometheus.CounterVec

	// Characters removed by input sanitization
	StrippedChars prometheus.Counter

	// Time spent holding the process lock per operation
	MutationLatency *prometheus.HistogramVec
}

// New registers every metric on reg. A nil reg registers on a fresh registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		Mutations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "transline_mutations_total",
			Help: "Total process operations by operation, role and result",
		}, []string{"op", "role", "result"}),

		StrippedChars: factory.NewCounter(prometheus.CounterOpts{
			Name: "transline_sanitize_stripped_chars_total",
			Help: "Characters removed from text input by sanitization",
		}),

		MutationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transline_mutation_duration_seconds",
			Help:    "Duration of process operations including persistence",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}, []string{"op"}),
	}
}

// IncrementMutation records the result of one operation.
func (m *Metrics) IncrementMutation(op, role, result string) {
	if m != nil {
		m.Mutations.WithLabelValues(op, role, result).Inc()
	}
}

// AddStripped records characters removed by sanitization.
func (m *Metrics) AddStripped(n int) {
	if m != nil && n > 0 {
		m.StrippedChars.Add(float64(n))
	}
}

// ObserveLatency records the duration of an operation.
func (m *Metrics) ObserveLatency(op string, d time.Duration) {
	if m != nil {
		m.MutationLatency.WithLabelValues(op).Observe(d.Seconds())
	}
}
