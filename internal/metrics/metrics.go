// Package metrics exposes Prometheus instruments for the trading loop.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "etherfuse_arb_cycles_total",
		Help: "Trading cycles by outcome",
	}, []string{"outcome"}) // outcome=opportunity|none|below_min|skipped|error

	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "etherfuse_arb_cycle_duration_seconds",
		Help:    "Wall time of one trading cycle",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	strategyEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "etherfuse_arb_strategy_evaluations_total",
		Help: "Strategy evaluations by strategy and outcome",
	}, []string{"strategy", "outcome"})

	quoteRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "etherfuse_arb_jupiter_quotes_total",
		Help: "Jupiter quote requests by side and status",
	}, []string{"side", "status"}) // status=success|error

	bestProfit = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "etherfuse_arb_best_profit_usd",
		Help: "Best net profit found by the last evaluation of each strategy",
	}, []string{"strategy"})

	bundlesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "etherfuse_arb_bundles_total",
		Help: "Submitted Jito bundles by final status",
	}, []string{"status"})

	etherfusePrice = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "etherfuse_arb_etherfuse_price_usd",
		Help: "Last observed Etherfuse stablebond price in USD",
	})

	jitoTipLamports = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "etherfuse_arb_jito_tip_lamports",
		Help: "Last observed Jito tip floor in lamports",
	})

	feedReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "etherfuse_arb_feed_reconnects_total",
		Help: "Account feed websocket reconnects",
	})
)

// RecordCycle counts one trading cycle and its duration.
func RecordCycle(outcome string, d time.Duration) {
	cyclesTotal.WithLabelValues(outcome).Inc()
	cycleDuration.Observe(d.Seconds())
}

// RecordEvaluation counts one strategy evaluation. profit is recorded when
// the strategy produced a candidate.
func RecordEvaluation(strategy, outcome string, profit float64, hasProfit bool) {
	strategyEvaluations.WithLabelValues(strategy, outcome).Inc()
	if hasProfit {
		bestProfit.WithLabelValues(strategy).Set(profit)
	}
}

// RecordQuote counts one Jupiter quote request.
func RecordQuote(side string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	quoteRequests.WithLabelValues(side, status).Inc()
}

// RecordBundle counts a bundle by its final status.
func RecordBundle(status string) {
	bundlesTotal.WithLabelValues(status).Inc()
}

// SetMarket records the latest market inputs.
func SetMarket(priceUSD float64, tipLamports uint64) {
	etherfusePrice.Set(priceUSD)
	jitoTipLamports.Set(float64(tipLamports))
}

// RecordFeedReconnect counts one websocket reconnect.
func RecordFeedReconnect() {
	feedReconnects.Inc()
}
