// Package metrics exposes the Prometheus metrics of the client.
//
// Metrics are defined next to the code that records them (client, cache,
// ratelimit, pagination, graphql) and registered through promauto on the
// default registry; this package only serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every package records into.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects everything registered on Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registered metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - rickmorty_requests_total{transport, status} (Counter): upstream requests by transport and HTTP status
//   - rickmorty_request_duration_seconds{transport} (Histogram): upstream request duration
//   - rickmorty_errors_total{class} (Counter): failures by class
//     (rate_limit, network, server, not_found, malformed, client)
//
// Retry Metrics (pkg/client):
//   - rickmorty_retries_total{error_class} (Counter): retry attempts
//   - rickmorty_retry_backoff_seconds{error_class} (Histogram): chosen backoff, Retry-After included
//   - rickmorty_retry_exhausted_total{error_class} (Counter): requests that ran out of attempts
//
// Pagination Metrics (pkg/pagination):
//   - rickmorty_pages_fetched_total{resource} (Counter)
//   - rickmorty_pagination_failures_total{resource} (Counter): aborted paginated fetches
//   - rickmorty_pagination_duration_seconds{resource} (Histogram): full resource fetch duration
//
// Optimizer Metrics (pkg/graphql):
//   - rickmorty_optimizer_api_calls (Histogram): queries per optimized fetch
//   - rickmorty_optimizer_reduction_percent (Gauge): reduction of the last optimized fetch
//   - rickmorty_optimizer_fallbacks_total (Counter): combined queries split into single queries
//
// Cache Metrics (pkg/cache):
//   - rickmorty_cache_hits_total{state} (Counter): fresh or stale hits
//   - rickmorty_cache_misses_total (Counter)
//   - rickmorty_cache_stored_bytes_total (Counter)
//   - rickmorty_cache_revalidated_total (Counter): 304 responses refreshing a stale entry
//   - rickmorty_cache_errors_total{operation} (Counter)
//
// Rate Limit Metrics (pkg/ratelimit):
//   - rickmorty_rate_limit_remaining (Gauge): last X-RateLimit-Remaining seen
//   - rickmorty_rate_limit_cooldowns_total (Counter): 429 cooldowns recorded
//   - rickmorty_rate_limit_wait_seconds{reason} (Histogram): time spent waiting before a request
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(rickmorty_cache_hits_total[5m])) /
//   (sum(rate(rickmorty_cache_hits_total[5m])) + sum(rate(rickmorty_cache_misses_total[5m])))
//
//   # Retry pressure by class
//   sum by (error_class) (rate(rickmorty_retries_total[5m]))
//
//   # P95 Request Latency per transport
//   histogram_quantile(0.95, sum by (transport, le) (rate(rickmorty_request_duration_seconds_bucket[5m])))
