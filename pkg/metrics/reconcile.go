package metrics

import "github.com/prometheus/client_golang/prometheus"

// ReconcileMetrics counts per-vendor reconciliation outcomes.
type ReconcileMetrics struct {
	vendors *prometheus.CounterVec
}

func NewReconcileMetrics(reg prometheus.Registerer) *ReconcileMetrics {
	if reg == nil {
		return &ReconcileMetrics{}
	}
	vendors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_vendors_total",
		Help:      "Vendors visited by the subscription reconciler, by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(vendors)
	return &ReconcileMetrics{vendors: vendors}
}

func (m *ReconcileMetrics) Observe(outcome string) {
	if m == nil || m.vendors == nil {
		return
	}
	m.vendors.WithLabelValues(normalizeLabel(outcome)).Inc()
}
