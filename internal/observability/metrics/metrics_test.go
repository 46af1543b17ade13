package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestVoiceMetricsRegisterAndCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewVoiceMetrics(reg)

	m.ObserveCallback("status_callback", "ok")
	m.ObserveCallback("status_callback", "ok")
	m.ObserveOutcome("no_answer")
	m.ObserveMenuStep("root", "1")
	m.ObserveLatency("inbound", 0.05)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.callbacksTotal.WithLabelValues("status_callback", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.outcomesTotal.WithLabelValues("no_answer")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.menuStepsTotal.WithLabelValues("root", "1")))
}

func TestNilReceiverIsSafe(t *testing.T) {
	var m *VoiceMetrics
	m.ObserveCallback("x", "y")
	m.ObserveOutcome("z")
	m.ObserveMenuStep("a", "b")
	m.ObserveLatency("c", 1)
}

func TestEmptyOutcomeIgnored(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewVoiceMetrics(reg)
	m.ObserveOutcome("")
	count, err := testutil.GatherAndCount(reg, "callops_voice_call_outcomes_total")
	assert.NoError(t, err)
	assert.Equal(t, 0, count)
}
