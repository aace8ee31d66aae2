package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Gate metrics
	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trading_gate_decisions_total",
			Help: "Entry attempts by action and reason",
		},
		[]string{"action", "reason"},
	)

	decisionLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trading_gate_decision_seconds",
			Help:    "Time spent deciding and submitting one entry attempt",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
	)

	// Breaker metrics
	breakerTripped = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trading_gate_breaker_tripped",
			Help: "Circuit breaker state (0=armed, 1=tripped)",
		},
	)

	breakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trading_gate_breaker_transitions_total",
			Help: "Circuit breaker transitions",
		},
		[]string{"to", "reason"},
	)

	dailyPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trading_gate_daily_pnl",
			Help: "Realized PnL of the current trading day",
		},
	)

	// Guard metrics
	openPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trading_gate_open_positions",
			Help: "Open positions as seen by the position guard",
		},
	)

	inflightOrders = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trading_gate_inflight_orders",
			Help: "Order attempts waiting for a broker answer",
		},
	)

	guardFixesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trading_gate_guard_fixes_total",
			Help: "Reconciliations that found a local/broker difference",
		},
		[]string{"synced"},
	)

	// Trailing and settlement metrics
	trailUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trading_gate_trail_updates_total",
			Help: "Trailing stop updates by outcome",
		},
		[]string{"result"},
	)

	tradesClosedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trading_gate_trades_closed_total",
			Help: "Settled trades by outcome",
		},
		[]string{"outcome"},
	)

	busDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trading_gate_bus_dropped_total",
			Help: "Events dropped because a subscriber was slow",
		},
		[]string{"event"},
	)
)

func init() {
	prometheus.MustRegister(decisionsTotal)
	prometheus.MustRegister(decisionLatency)
	prometheus.MustRegister(breakerTripped)
	prometheus.MustRegister(breakerTransitions)
	prometheus.MustRegister(dailyPnL)
	prometheus.MustRegister(openPositions)
	prometheus.MustRegister(inflightOrders)
	prometheus.MustRegister(guardFixesTotal)
	prometheus.MustRegister(trailUpdatesTotal)
	prometheus.MustRegister(tradesClosedTotal)
	prometheus.MustRegister(busDroppedTotal)
}

// Handler serves the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordBusDrop counts a payload a slow subscriber missed.
func RecordBusDrop(event string) {
	busDroppedTotal.WithLabelValues(event).Inc()
}
