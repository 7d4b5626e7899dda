package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rickmorty_pages_fetched_total",
		Help: "Total pages fetched by resource",
	}, []string{"resource"})

	paginationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rickmorty_pagination_failures_total",
		Help: "Total paginated fetches aborted by a failed page",
	}, []string{"resource"})

	paginationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rickmorty_pagination_duration_seconds",
		Help:    "Duration of complete paginated fetches by resource",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"resource"})
)
