package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics counts money movements and workflow transitions.
type SettlementMetrics struct {
	callbacks    *prometheus.CounterVec
	ledgerRows   *prometheus.CounterVec
	ledgerAmount *prometheus.CounterVec
	payouts      *prometheus.CounterVec
	violations   prometheus.Counter
}

// NewSettlementMetrics registers settlement counters on reg. A nil registerer
// yields a no-op recorder.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	callbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_payment_callbacks_total",
		Help: "Payment gateway callbacks by outcome.",
	}, []string{"outcome"})
	ledgerRows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_ledger_entries_total",
		Help: "Vendor ledger rows written by transaction type.",
	}, []string{"type"})
	ledgerAmount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_ledger_amount_cents_total",
		Help: "Absolute amount moved through the vendor ledger, in cents.",
	}, []string{"type"})
	payouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_payout_transitions_total",
		Help: "Payout state transitions by target status.",
	}, []string{"to"})
	violations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "settlement_invariant_violations_total",
		Help: "Ledger consistency check failures.",
	})
	reg.MustRegister(callbacks, ledgerRows, ledgerAmount, payouts, violations)
	return &SettlementMetrics{
		callbacks:    callbacks,
		ledgerRows:   ledgerRows,
		ledgerAmount: ledgerAmount,
		payouts:      payouts,
		violations:   violations,
	}
}

func (m *SettlementMetrics) IncCallback(outcome string) {
	if m == nil || m.callbacks == nil {
		return
	}
	m.callbacks.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveLedgerEntry records one ledger row. amountCents may be signed.
func (m *SettlementMetrics) ObserveLedgerEntry(txnType string, amountCents int64) {
	if m == nil || m.ledgerRows == nil {
		return
	}
	if amountCents < 0 {
		amountCents = -amountCents
	}
	label := normalizeLabel(txnType)
	m.ledgerRows.WithLabelValues(label).Inc()
	m.ledgerAmount.WithLabelValues(label).Add(float64(amountCents))
}

func (m *SettlementMetrics) IncPayoutTransition(to string) {
	if m == nil || m.payouts == nil {
		return
	}
	m.payouts.WithLabelValues(normalizeLabel(to)).Inc()
}

func (m *SettlementMetrics) IncInvariantViolation() {
	if m == nil || m.violations == nil {
		return
	}
	m.violations.Inc()
}
