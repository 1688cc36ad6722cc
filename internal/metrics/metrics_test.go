package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersAccumulate(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.IncrementMutation("change_text", "translator", "ok")
	m.IncrementMutation("change_text", "translator", "ok")
	m.IncrementMutation("change_text", "client", "rejected")
	m.AddStripped(3)
	m.AddStripped(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Mutations.WithLabelValues("change_text", "translator", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Mutations.WithLabelValues("change_text", "client", "rejected")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.StrippedChars))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncrementMutation("x", "y", "z")
		m.AddStripped(2)
		m.ObserveLatency("x", 0)
	})
}
