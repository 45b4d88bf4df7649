// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Market data metrics
	TicksReceived  prometheus.Counter
	TicksPublished prometheus.Counter
	TicksDropped   prometheus.Counter
	FeedReconnects prometheus.Counter

	// Evaluation metrics
	EvaluationsTotal  *prometheus.CounterVec
	EvaluationErrors  *prometheus.CounterVec
	SignalsFired      *prometheus.CounterVec
	EvaluationLatency prometheus.Histogram
	SweepRunsTotal    prometheus.Counter
	SweepDuration     prometheus.Histogram

	// Ledger metrics
	OrdersPlaced   *prometheus.CounterVec
	OrdersRejected *prometheus.CounterVec

	// Registry metrics
	ActiveStrategies  prometheus.Gauge
	SubscribedSymbols prometheus.Gauge

	// Database metrics
	DBQueryErrors *prometheus.CounterVec

	// Health metrics
	LastTickTimestamp  prometheus.Gauge
	LastSweepTimestamp prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "papertrade"
	}

	return &Metrics{
		// Market data metrics
		TicksReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "ticks_received_total",
			Help:      "Total number of price ticks received from the feed",
		}),
		TicksPublished: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "ticks_published_total",
			Help:      "Total number of price ticks published to consumers",
		}),
		TicksDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "ticks_dropped_total",
			Help:      "Total number of ticks dropped from full consumer queues",
		}),
		FeedReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "feed_reconnects_total",
			Help:      "Total number of websocket feed reconnections",
		}),

		// Evaluation metrics
		EvaluationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "evaluations_total",
			Help:      "Total number of strategy evaluations by trigger",
		}, []string{"trigger"}),
		EvaluationErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "evaluation_errors_total",
			Help:      "Total number of failed strategy evaluations by strategy type",
		}, []string{"strategy_type"}),
		SignalsFired: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "signals_fired_total",
			Help:      "Total number of trading signals by strategy type and side",
		}, []string{"strategy_type", "side"}),
		EvaluationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "evaluation_latency_seconds",
			Help:      "Single strategy/symbol evaluation latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		SweepRunsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "sweep_runs_total",
			Help:      "Total number of fallback sweeps over active strategies",
		}),
		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "sweep_duration_seconds",
			Help:      "Fallback sweep duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60},
		}),

		// Ledger metrics
		OrdersPlaced: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "orders_placed_total",
			Help:      "Total number of simulated fills by side",
		}, []string{"side"}),
		OrdersRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "orders_rejected_total",
			Help:      "Total number of rejected orders by reason",
		}, []string{"reason"}),

		// Registry metrics
		ActiveStrategies: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "active_strategies",
			Help:      "Number of currently active strategies",
		}),
		SubscribedSymbols: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "subscribed_symbols",
			Help:      "Number of symbols with live market data subscriptions",
		}),

		// Database metrics
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastTickTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_tick_timestamp",
			Help:      "Unix timestamp of the last processed price tick",
		}),
		LastSweepTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_sweep_timestamp",
			Help:      "Unix timestamp of the last completed fallback sweep",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTickReceived increments the ticks received counter.
func RecordTickReceived() {
	DefaultMetrics.TicksReceived.Inc()
	DefaultMetrics.LastTickTimestamp.SetToCurrentTime()
}

// RecordSignal records a fired trading signal.
func RecordSignal(strategyType, side string) {
	DefaultMetrics.SignalsFired.WithLabelValues(strategyType, side).Inc()
}

// RecordEvaluation records one evaluation by trigger path.
func RecordEvaluation(trigger string) {
	DefaultMetrics.EvaluationsTotal.WithLabelValues(trigger).Inc()
}

// RecordEvaluationError records a failed evaluation.
func RecordEvaluationError(strategyType string) {
	DefaultMetrics.EvaluationErrors.WithLabelValues(strategyType).Inc()
}

// RecordOrderPlaced increments the fills counter.
func RecordOrderPlaced(side string) {
	DefaultMetrics.OrdersPlaced.WithLabelValues(side).Inc()
}

// RecordOrderRejected increments the rejection counter.
func RecordOrderRejected(reason string) {
	DefaultMetrics.OrdersRejected.WithLabelValues(reason).Inc()
}

// RecordDBError records a failed database query.
func RecordDBError(database, operation string) {
	DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
}

// RecordSweep records a completed fallback sweep.
func RecordSweep(durationSeconds float64) {
	DefaultMetrics.SweepRunsTotal.Inc()
	DefaultMetrics.SweepDuration.Observe(durationSeconds)
	DefaultMetrics.LastSweepTimestamp.SetToCurrentTime()
}

// UpdateRegistrySizes updates the registry gauges.
func UpdateRegistrySizes(activeStrategies, subscribedSymbols int) {
	DefaultMetrics.ActiveStrategies.Set(float64(activeStrategies))
	DefaultMetrics.SubscribedSymbols.Set(float64(subscribedSymbols))
}
