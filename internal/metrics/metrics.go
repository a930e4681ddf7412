package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "wa_bot"

// BotMetrics exposes counters/histograms for the relay flow.
type BotMetrics struct {
	updatesTotal     *prometheus.CounterVec
	assistantCalls   *prometheus.CounterVec
	assistantLatency *prometheus.HistogramVec
	sessionRenewals  prometheus.Counter
	repliesTotal     *prometheus.CounterVec
}

func NewBotMetrics(reg prometheus.Registerer) *BotMetrics {
	m := &BotMetrics{
		updatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telegram",
			Name:      "updates_total",
			Help:      "Total Telegram updates handled",
		}, []string{"kind"}),
		assistantCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assistant",
			Name:      "calls_total",
			Help:      "Total assistant service calls",
		}, []string{"operation", "status"}),
		assistantLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "assistant",
			Name:      "call_latency_seconds",
			Help:      "Latency of assistant service calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		sessionRenewals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assistant",
			Name:      "session_renewals_total",
			Help:      "Sessions re-created after the service rejected a message",
		}),
		repliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "replies_total",
			Help:      "Rendered replies by outcome",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.updatesTotal, m.assistantCalls, m.assistantLatency, m.sessionRenewals, m.repliesTotal)
	return m
}

func (m *BotMetrics) ObserveUpdate(kind string) {
	if m == nil {
		return
	}
	m.updatesTotal.WithLabelValues(kind).Inc()
}

func (m *BotMetrics) ObserveAssistantCall(operation string, err error, seconds float64) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.assistantCalls.WithLabelValues(operation, status).Inc()
	m.assistantLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *BotMetrics) ObserveSessionRenewal() {
	if m == nil {
		return
	}
	m.sessionRenewals.Inc()
}

func (m *BotMetrics) ObserveReply(outcome string) {
	if m == nil {
		return
	}
	m.repliesTotal.WithLabelValues(outcome).Inc()
}
