package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBotMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBotMetrics(reg)

	m.ObserveUpdate("message")
	m.ObserveUpdate("message")
	m.ObserveAssistantCall("send_message", nil, 0.2)
	m.ObserveAssistantCall("send_message", errors.New("boom"), 0.1)
	m.ObserveSessionRenewal()
	m.ObserveReply("rendered")

	if got := testutil.ToFloat64(m.updatesTotal.WithLabelValues("message")); got != 2 {
		t.Fatalf("expected 2 message updates, got %v", got)
	}
	if got := testutil.ToFloat64(m.assistantCalls.WithLabelValues("send_message", "error")); got != 1 {
		t.Fatalf("expected 1 failed call, got %v", got)
	}
	if got := testutil.ToFloat64(m.sessionRenewals); got != 1 {
		t.Fatalf("expected 1 renewal, got %v", got)
	}
}

func TestBotMetricsNilSafe(t *testing.T) {
	var m *BotMetrics
	m.ObserveUpdate("command")
	m.ObserveAssistantCall("create_session", nil, 0.1)
	m.ObserveSessionRenewal()
	m.ObserveReply("malformed")
}
