package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits counts lookups that found an entry, by freshness.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rickmorty_cache_hits_total",
			Help: "Total number of response cache hits",
		},
		[]string{"state"}, // "fresh", "stale"
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rickmorty_cache_misses_total",
			Help: "Total number of response cache misses",
		},
	)

	CacheStoredBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rickmorty_cache_stored_bytes_total",
			Help: "Total bytes written to the response cache",
		},
	)

	// Revalidations counts 304 Not Modified answers to conditional requests.
	Revalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rickmorty_cache_revalidated_total",
			Help: "Total number of cache entries revalidated with 304 Not Modified",
		},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rickmorty_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
