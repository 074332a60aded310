package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestWebhookMetricsCountsByTypeAndOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWebhookMetrics(reg)
	m.Observe("checkout.session.completed", WebhookOutcomeApplied)
	m.Observe("checkout.session.completed", WebhookOutcomeApplied)
	m.Observe("", WebhookOutcomeRejected)

	expected := `
# HELP vowvendors_webhook_events_total Billing webhook deliveries by event type and outcome.
# TYPE vowvendors_webhook_events_total counter
vowvendors_webhook_events_total{event_type="checkout.session.completed",outcome="applied"} 2
vowvendors_webhook_events_total{event_type="unknown",outcome="rejected"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "vowvendors_webhook_events_total"); err != nil {
		t.Fatalf("unexpected webhook metrics: %v", err)
	}
}

func TestReconcileMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewReconcileMetrics(reg)
	m.Observe("synced")
	m.Observe("failed")
	m.Observe("synced")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "vowvendors_reconcile_vendors_total", "outcome", "synced"); err != nil || got != 2 {
		t.Fatalf("expected synced=2, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "vowvendors_reconcile_vendors_total", "outcome", "failed"); err != nil || got != 1 {
		t.Fatalf("expected failed=1, got %f (%v)", got, err)
	}
}

func TestNilWebhookAndReconcileMetricsAreNoops(t *testing.T) {
	var w *WebhookMetrics
	w.Observe("x", "y")
	var r *ReconcileMetrics
	r.Observe("synced")
	NewWebhookMetrics(nil).Observe("x", "y")
	NewReconcileMetrics(nil).Observe("synced")
}
