package metrics

import "github.com/prometheus/client_golang/prometheus"

// Webhook outcomes.
const (
	WebhookOutcomeApplied   = "applied"
	WebhookOutcomeSkipped   = "skipped"
	WebhookOutcomeStale     = "stale"
	WebhookOutcomeDuplicate = "duplicate"
	WebhookOutcomeRejected  = "rejected"
	WebhookOutcomeFailed    = "failed"
)

// WebhookMetrics counts billing webhook deliveries by event type and outcome.
type WebhookMetrics struct {
	events *prometheus.CounterVec
}

func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_events_total",
		Help:      "Billing webhook deliveries by event type and outcome.",
	}, []string{"event_type", "outcome"})
	reg.MustRegister(events)
	return &WebhookMetrics{events: events}
}

func (m *WebhookMetrics) Observe(eventType, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}
