package graphql

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	optimizerAPICalls = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rickmorty_optimizer_api_calls",
		Help:    "Requests issued per optimized full-dataset fetch",
		Buckets: prometheus.LinearBuckets(1, 5, 10),
	})

	optimizerReductionPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rickmorty_optimizer_reduction_percent",
		Help: "Call reduction of the last optimized fetch versus paginating each resource",
	})

	optimizerFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rickmorty_optimizer_fallbacks_total",
		Help: "Combined page queries that failed and were split into single queries",
	})
)
