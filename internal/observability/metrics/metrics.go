package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ConversationMetrics exposes counters/histograms for the booking flow.
type ConversationMetrics struct {
	turnsTotal          *prometheus.CounterVec
	transitionsTotal    *prometheus.CounterVec
	turnLatency         *prometheus.HistogramVec
	gatewayCallsTotal   *prometheus.CounterVec
	gatewayLatency      *prometheus.HistogramVec
	generationFallbacks *prometheus.CounterVec
	inboundTotal        *prometheus.CounterVec
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "odonto",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Processed inbound messages by stage handled and outcome",
		}, []string{"stage", "outcome"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "odonto",
			Subsystem: "conversation",
			Name:      "stage_transitions_total",
			Help:      "Stage changes",
		}, []string{"from", "to"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "odonto",
			Subsystem: "conversation",
			Name:      "turn_latency_seconds",
			Help:      "Time spent processing one inbound message",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		gatewayCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "odonto",
			Subsystem: "calendar",
			Name:      "gateway_calls_total",
			Help:      "Calendar gateway calls by operation and outcome",
		}, []string{"op", "outcome"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "odonto",
			Subsystem: "calendar",
			Name:      "gateway_latency_seconds",
			Help:      "Calendar gateway call latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		generationFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "odonto",
			Subsystem: "llm",
			Name:      "generation_fallbacks_total",
			Help:      "Generations answered with the fixed apology",
		}, []string{"reason"}),
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "odonto",
			Subsystem: "messaging",
			Name:      "inbound_total",
			Help:      "Inbound webhook messages by status",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.transitionsTotal, m.turnLatency, m.gatewayCallsTotal,
		m.gatewayLatency, m.generationFallbacks, m.inboundTotal)
	return m
}

func (m *ConversationMetrics) ObserveTurn(stage, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(stage, outcome).Inc()
	m.turnLatency.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func (m *ConversationMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

// ObserveGatewayCall satisfies calendar.CallRecorder.
func (m *ConversationMetrics) ObserveGatewayCall(op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.gatewayCallsTotal.WithLabelValues(op, outcome).Inc()
	m.gatewayLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveGenerationFallback satisfies llm.FallbackRecorder.
func (m *ConversationMetrics) ObserveGenerationFallback(reason string) {
	if m == nil {
		return
	}
	m.generationFallbacks.WithLabelValues(reason).Inc()
}

func (m *ConversationMetrics) ObserveInbound(status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(status).Inc()
}
