// Package observability provides Prometheus metrics for the desk.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the desk's Prometheus metrics. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	QuotesComputed       *prometheus.CounterVec
	OperationsSubmitted  *prometheus.CounterVec
	OperationFailures    *prometheus.CounterVec
	TransactionsResolved *prometheus.CounterVec
	MonitorGiveUps       prometheus.Counter
	PendingOperations    prometheus.Gauge
	RewardsClaimed       prometheus.Counter
}

// NewMetrics registers all metrics under the namespace.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "ammdesk"
	}
	return &Metrics{
		QuotesComputed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_computed_total",
			Help:      "Liquidity quotes computed, by side.",
		}, []string{"side"}),
		OperationsSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_submitted_total",
			Help:      "Operations submitted to the chain, by type.",
		}, []string{"type"}),
		OperationFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_failures_total",
			Help:      "Operations rejected before submission, by type.",
		}, []string{"type"}),
		TransactionsResolved: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_resolved_total",
			Help:      "Monitored transactions resolved, by terminal status.",
		}, []string{"status"}),
		MonitorGiveUps: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_give_ups_total",
			Help:      "Monitor tasks that exhausted their poll budget.",
		}),
		PendingOperations: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_operations",
			Help:      "Operations currently awaiting resolution.",
		}),
		RewardsClaimed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rewards_claimed_total",
			Help:      "Total reward units claimed.",
		}),
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CountQuote records a computed quote.
func (m *Metrics) CountQuote(side string) {
	if m == nil {
		return
	}
	m.QuotesComputed.WithLabelValues(side).Inc()
}

// CountSubmitted records a submitted operation.
func (m *Metrics) CountSubmitted(opType string) {
	if m == nil {
		return
	}
	m.OperationsSubmitted.WithLabelValues(opType).Inc()
}

// CountFailure records a pre-submission rejection.
func (m *Metrics) CountFailure(opType string) {
	if m == nil {
		return
	}
	m.OperationFailures.WithLabelValues(opType).Inc()
}

// CountResolved records a terminal transaction status.
func (m *Metrics) CountResolved(status string) {
	if m == nil {
		return
	}
	m.TransactionsResolved.WithLabelValues(status).Inc()
}

// CountGiveUp records an exhausted monitor task.
func (m *Metrics) CountGiveUp() {
	if m == nil {
		return
	}
	m.MonitorGiveUps.Inc()
}

// SetPending records the pending-operation gauge.
func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.PendingOperations.Set(float64(n))
}

// AddRewardsClaimed records claimed reward units.
func (m *Metrics) AddRewardsClaimed(amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.RewardsClaimed.Add(amount)
}
