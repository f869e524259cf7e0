package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics counts outbox publisher outcomes.
type OutboxMetrics struct {
	published *prometheus.CounterVec
	retried   *prometheus.CounterVec
	parked    *prometheus.CounterVec
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_outbox_published_total",
		Help: "Outbox events delivered to the broker.",
	}, []string{"event_type"})
	retried := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_outbox_retries_total",
		Help: "Outbox publish attempts that failed and will be retried.",
	}, []string{"event_type"})
	parked := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_outbox_parked_total",
		Help: "Outbox events parked without further retries.",
	}, []string{"event_type", "reason"})
	reg.MustRegister(published, retried, parked)
	return &OutboxMetrics{published: published, retried: retried, parked: parked}
}

func (m *OutboxMetrics) Published(eventType string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(eventType).Inc()
}

func (m *OutboxMetrics) Retried(eventType string) {
	if m == nil || m.retried == nil {
		return
	}
	m.retried.WithLabelValues(eventType).Inc()
}

func (m *OutboxMetrics) Parked(eventType, reason string) {
	if m == nil || m.parked == nil {
		return
	}
	m.parked.WithLabelValues(eventType, reason).Inc()
}
