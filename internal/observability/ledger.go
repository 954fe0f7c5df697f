package observability

import "github.com/prometheus/client_golang/prometheus"

// LedgerMetrics counts payment ledger and credit outcomes. All methods accept a
// nil receiver.
type LedgerMetrics struct {
	payments      *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	overpaid      *prometheus.CounterVec
	creditChanges *prometheus.CounterVec
}

func newLedgerMetrics(registerer prometheus.Registerer) *LedgerMetrics {
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_payments_recorded_total",
		Help: "Payments recorded by party type.",
	}, []string{"party_type"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_allocations_rejected_total",
		Help: "Allocation requests refused by the limit they exceeded.",
	}, []string{"limit"})
	overpaid := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_orders_overpaid_total",
		Help: "Order recomputations that ended overpaid.",
	}, []string{"order_type"})
	creditChanges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_credit_status_changes_total",
		Help: "Customer credit status transitions.",
	}, []string{"from", "to"})
	registerer.MustRegister(payments, rejections, overpaid, creditChanges)
	return &LedgerMetrics{payments: payments, rejections: rejections, overpaid: overpaid, creditChanges: creditChanges}
}

func (m *LedgerMetrics) PaymentRecorded(partyType string) {
	if m != nil {
		m.payments.WithLabelValues(partyType).Inc()
	}
}

func (m *LedgerMetrics) AllocationRejected(limit string) {
	if m != nil {
		m.rejections.WithLabelValues(limit).Inc()
	}
}

func (m *LedgerMetrics) OrderOverpaid(orderType string) {
	if m != nil {
		m.overpaid.WithLabelValues(orderType).Inc()
	}
}

func (m *LedgerMetrics) CreditStatusChanged(from, to string) {
	if m != nil {
		m.creditChanges.WithLabelValues(from, to).Inc()
	}
}
