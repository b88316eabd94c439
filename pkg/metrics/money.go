package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MoneyMetrics tracks payment, escrow and payout activity.
type MoneyMetrics struct {
	gatewayCalls     *prometheus.CounterVec
	gatewayLatency   *prometheus.HistogramVec
	escrowTransition *prometheus.CounterVec
	payoutActions    *prometheus.CounterVec
	webhookRejected  *prometheus.CounterVec
	idempotency      *prometheus.CounterVec
}

// NewMoneyMetrics registers the money-movement metrics on the provided registerer.
// A nil registerer yields a no-op collector.
func NewMoneyMetrics(reg prometheus.Registerer) *MoneyMetrics {
	if reg == nil {
		return &MoneyMetrics{}
	}
	m := &MoneyMetrics{
		gatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escrowpay_gateway_requests_total",
			Help: "Outbound payment gateway calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "escrowpay_gateway_request_duration_seconds",
			Help:    "Latency of outbound payment gateway calls.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),
		escrowTransition: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escrowpay_escrow_transitions_total",
			Help: "Escrow account status transitions by target status.",
		}, []string{"status"}),
		payoutActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escrowpay_payout_actions_total",
			Help: "Payout lifecycle actions applied.",
		}, []string{"action"}),
		webhookRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escrowpay_webhook_rejections_total",
			Help: "Inbound webhooks rejected before processing.",
		}, []string{"source", "reason"}),
		idempotency: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escrowpay_idempotency_lookups_total",
			Help: "Idempotency cache lookups by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.gatewayCalls, m.gatewayLatency, m.escrowTransition, m.payoutActions, m.webhookRejected, m.idempotency)
	return m
}

// ObserveGatewayCall records one gateway round trip.
func (m *MoneyMetrics) ObserveGatewayCall(operation, outcome string, duration time.Duration) {
	if m == nil || m.gatewayCalls == nil {
		return
	}
	op := normalizeLabel(operation)
	m.gatewayCalls.WithLabelValues(op, normalizeLabel(outcome)).Inc()
	m.gatewayLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// IncEscrowTransition counts an escrow account entering status.
func (m *MoneyMetrics) IncEscrowTransition(status string) {
	if m == nil || m.escrowTransition == nil {
		return
	}
	m.escrowTransition.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncPayoutAction counts a payout lifecycle action.
func (m *MoneyMetrics) IncPayoutAction(action string) {
	if m == nil || m.payoutActions == nil {
		return
	}
	m.payoutActions.WithLabelValues(normalizeLabel(action)).Inc()
}

// IncWebhookRejected counts a webhook dropped before any state change.
func (m *MoneyMetrics) IncWebhookRejected(source, reason string) {
	if m == nil || m.webhookRejected == nil {
		return
	}
	m.webhookRejected.WithLabelValues(normalizeLabel(source), normalizeLabel(reason)).Inc()
}

// IncIdempotency counts a cache hit, miss or store failure.
func (m *MoneyMetrics) IncIdempotency(result string) {
	if m == nil || m.idempotency == nil {
		return
	}
	m.idempotency.WithLabelValues(normalizeLabel(result)).Inc()
}
