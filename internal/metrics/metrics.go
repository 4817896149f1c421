// Package metrics exposes engine instrumentation through Prometheus. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "predictx"

// Metrics holds every collector the service records into.
type Metrics struct {
	registry *prometheus.Registry

	OrdersPlaced        *prometheus.CounterVec
	OrdersRejected      *prometheus.CounterVec
	TradesExecuted      prometheus.Counter
	SharesMatched       prometheus.Counter
	PlacementDuration   prometheus.Histogram
	MatchingAnomalies   prometheus.Counter
	SelfTradesSkipped   prometheus.Counter
	TxRetries           prometheus.Counter
	NotificationsSent   *prometheus.CounterVec
	NotificationsFailed *prometheus.CounterVec
	BroadcastDropped    prometheus.Counter
	BroadcastClients    prometheus.Gauge
	ReconcileViolations prometheus.Gauge
	ReconcileRuns       prometheus.Counter
}

// New creates Metrics on a fresh registry that also carries the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		OrdersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_placed_total",
			Help:      "Orders accepted, by side and resulting status.",
		}, []string{"side", "status"}),
		OrdersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_rejected_total",
			Help:      "Orders rejected, by reason.",
		}, []string{"reason"}),
		TradesExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_executed_total",
			Help:      "Trades created by the matcher.",
		}),
		SharesMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shares_matched_total",
			Help:      "Shares matched across all trades.",
		}),
		PlacementDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "placement_duration_seconds",
			Help:      "Time from lock acquisition to commit of an order placement.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		MatchingAnomalies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matching_anomalies_total",
			Help:      "Resting candidates skipped because their remaining quantity was not positive.",
		}),
		SelfTradesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "self_trades_skipped_total",
			Help:      "Resting candidates skipped because they belonged to the incoming user.",
		}),
		TxRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_tx_retries_total",
			Help:      "Transactions retried after a serialization or deadlock failure.",
		}),
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_sent_total",
			Help:      "Notifications delivered, by sender.",
		}, []string{"sender"}),
		NotificationsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_failed_total",
			Help:      "Notification deliveries that failed, by sender.",
		}, []string{"sender"}),
		BroadcastDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_dropped_total",
			Help:      "Change events dropped for slow subscribers.",
		}),
		BroadcastClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broadcast_subscribers",
			Help:      "Current change-stream subscribers.",
		}),
		ReconcileViolations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reconcile_violations",
			Help:      "Invariant violations found by the last reconciliation pass.",
		}),
		ReconcileRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_runs_total",
			Help:      "Reconciliation passes completed.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.OrdersPlaced,
		m.OrdersRejected,
		m.TradesExecuted,
		m.SharesMatched,
		m.PlacementDuration,
		m.MatchingAnomalies,
		m.SelfTradesSkipped,
		m.TxRetries,
		m.NotificationsSent,
		m.NotificationsFailed,
		m.BroadcastDropped,
		m.BroadcastClients,
		m.ReconcileViolations,
		m.ReconcileRuns,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) OrderPlaced(side, status string) {
	if m == nil {
		return
	}
	m.OrdersPlaced.WithLabelValues(side, status).Inc()
}

func (m *Metrics) OrderRejected(reason string) {
	if m == nil {
		return
	}
	m.OrdersRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) TradeExecuted(quantity int64) {
	if m == nil {
		return
	}
	m.TradesExecuted.Inc()
	m.SharesMatched.Add(float64(quantity))
}

func (m *Metrics) ObservePlacement(d time.Duration) {
	if m == nil {
		return
	}
	m.PlacementDuration.Observe(d.Seconds())
}

func (m *Metrics) MatchingAnomaly() {
	if m == nil {
		return
	}
	m.MatchingAnomalies.Inc()
}

func (m *Metrics) SelfTradeSkipped() {
	if m == nil {
		return
	}
	m.SelfTradesSkipped.Inc()
}

func (m *Metrics) TxRetried() {
	if m == nil {
		return
	}
	m.TxRetries.Inc()
}

func (m *Metrics) NotificationSent(sender string) {
	if m == nil {
		return
	}
	m.NotificationsSent.WithLabelValues(sender).Inc()
}

func (m *Metrics) NotificationFailed(sender string) {
	if m == nil {
		return
	}
	m.NotificationsFailed.WithLabelValues(sender).Inc()
}

func (m *Metrics) BroadcastDrop() {
	if m == nil {
		return
	}
	m.BroadcastDropped.Inc()
}

func (m *Metrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.BroadcastClients.Set(float64(n))
}

func (m *Metrics) Reconciled(violations int) {
	if m == nil {
		return
	}
	m.ReconcileRuns.Inc()
	m.ReconcileViolations.Set(float64(violations))
}
