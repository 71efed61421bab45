package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	t.Fatalf("metric family %s not found", name)
	return nil
}

func labels(m *dto.Metric) map[string]string {
	out := map[string]string{}
	for _, lp := range m.GetLabel() {
		out[lp.GetName()] = lp.GetValue()
	}
	return out
}

func TestConversationMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewConversationMetrics(reg)

	m.ObserveTurn("confirmation", "ok", 120*time.Millisecond)
	m.ObserveTurn("confirmation", "ok", 80*time.Millisecond)
	m.ObserveTransition("confirmation", "closing")
	m.ObserveGatewayCall("create", "ok", 50*time.Millisecond)
	m.ObserveGenerationFallback("timeout")
	m.ObserveInbound("duplicate")

	turns := findFamily(t, reg, "odonto_conversation_turns_total")
	require.Len(t, turns.GetMetric(), 1)
	assert.Equal(t, map[string]string{"stage": "confirmation", "outcome": "ok"}, labels(turns.GetMetric()[0]))
	assert.Equal(t, 2.0, turns.GetMetric()[0].GetCounter().GetValue())

	latency := findFamily(t, reg, "odonto_conversation_turn_latency_seconds")
	assert.Equal(t, uint64(2), latency.GetMetric()[0].GetHistogram().GetSampleCount())

	calls := findFamily(t, reg, "odonto_calendar_gateway_calls_total")
	assert.Equal(t, map[string]string{"op": "create", "outcome": "ok"}, labels(calls.GetMetric()[0]))

	fallbacks := findFamily(t, reg, "odonto_llm_generation_fallbacks_total")
	assert.Equal(t, 1.0, fallbacks.GetMetric()[0].GetCounter().GetValue())

	inbound := findFamily(t, reg, "odonto_messaging_inbound_total")
	assert.Equal(t, "duplicate", labels(inbound.GetMetric()[0])["status"])

	transitions := findFamily(t, reg, "odonto_conversation_stage_transitions_total")
	assert.Equal(t, map[string]string{"from": "confirmation", "to": "closing"}, labels(transitions.GetMetric()[0]))
}

func TestConversationMetricsNilSafe(t *testing.T) {
	var m *ConversationMetrics
	m.ObserveTurn("greeting", "ok", time.Second)
	m.ObserveTransition("greeting", "intent")
	m.ObserveGatewayCall("cancel", "ok", time.Second)
	m.ObserveGenerationFallback("error")
	m.ObserveInbound("accepted")
}
