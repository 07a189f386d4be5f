// Package metrics provides the Prometheus registry and scrape handler for the
// listing client. All metrics are defined in their respective packages
// (client, feed, cache) to keep them modular and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the listing client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects the metrics registered with Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the HTTP handler serving every metric gathered from
// Gatherer. Scrapes themselves are counted in promhttp_metric_handler_*
// metrics registered with Registry.
func Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(Registry, promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{}))
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - listing_api_requests_total{op, status} (Counter): HTTP attempts by operation and status
//     (status is the HTTP code or "network_error")
//   - listing_api_request_duration_seconds{op} (Histogram): Call duration, retries included
//   - listing_api_errors_total{op, class} (Counter): Failed attempts by class (network, decode, server)
//
// Retry Metrics (pkg/client):
//   - listing_api_retries_total{op} (Counter): Retry attempts
//   - listing_api_retry_backoff_seconds{op} (Histogram): Backoff duration
//   - listing_api_retry_exhausted_total{op} (Counter): Calls that exhausted max attempts
//
// Feed Metrics (pkg/feed):
//   - feed_pages_loaded_total (Counter): Pages appended to a feed
//   - feed_page_failures_total (Counter): Page requests that failed
//   - feed_triggers_rejected_total{reason} (Counter): Triggers ignored (in_flight, closed, exhausted)
//   - feed_listings_appended_total (Counter): Listings appended across all feeds
//   - feed_page_duration_seconds (Histogram): Page request duration
//
// Cache Metrics (pkg/cache):
//   - listing_cache_hits_total{endpoint} (Counter): Cache hits
//   - listing_cache_misses_total{endpoint} (Counter): Cache misses
//   - listing_cache_written_bytes_total (Counter): Bytes written to Redis
//   - listing_cache_errors_total{operation} (Counter): Cache operation errors
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(listing_cache_hits_total[5m])) /
//   (sum(rate(listing_cache_hits_total[5m])) + sum(rate(listing_cache_misses_total[5m])))
//
//   # Collapsed triggers while a page is loading
//   rate(feed_triggers_rejected_total{reason="in_flight"}[5m])
//
//   # Request Error Rate by class
//   sum by (class) (rate(listing_api_errors_total[5m]))
//
//   # P95 Page Latency
//   histogram_quantile(0.95, rate(feed_page_duration_seconds_bucket[5m]))
