package metrics

import "github.com/prometheus/client_golang/prometheus"

// VoiceMetrics exposes counters/histograms for the voice webhook surface.
type VoiceMetrics struct {
	callbacksTotal *prometheus.CounterVec
	outcomesTotal  *prometheus.CounterVec
	menuStepsTotal *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
}

func NewVoiceMetrics(reg prometheus.Registerer) *VoiceMetrics {
	m := &VoiceMetrics{
		callbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "callops",
			Subsystem: "voice",
			Name:      "callbacks_total",
			Help:      "Total carrier callbacks received",
		}, []string{"category", "result"}),
		outcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "callops",
			Subsystem: "voice",
			Name:      "call_outcomes_total",
			Help:      "Terminal call outcomes by classification",
		}, []string{"outcome"}),
		menuStepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "callops",
			Subsystem: "ivr",
			Name:      "menu_steps_total",
			Help:      "Menu hops taken by inbound callers",
		}, []string{"node", "digit"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "callops",
			Subsystem: "voice",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of carrier webhook handling",
			Buckets:   prometheus.DefBuckets,
		}, []string{"category"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.callbacksTotal, m.outcomesTotal, m.menuStepsTotal, m.webhookLatency)
	return m
}

func (m *VoiceMetrics) ObserveCallback(category, result string) {
	if m == nil {
		return
	}
	m.callbacksTotal.WithLabelValues(category, result).Inc()
}

func (m *VoiceMetrics) ObserveOutcome(outcome string) {
	if m == nil || outcome == "" {
		return
	}
	m.outcomesTotal.WithLabelValues(outcome).Inc()
}

func (m *VoiceMetrics) ObserveMenuStep(node, digit string) {
	if m == nil {
		return
	}
	m.menuStepsTotal.WithLabelValues(node, digit).Inc()
}

func (m *VoiceMetrics) ObserveLatency(category string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(category).Observe(seconds)
}
