package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by endpoint
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listing_cache_hits_total",
			Help: "Total number of listing API cache hits",
		},
		[]string{"endpoint"},
	)

	// CacheMisses tracks cache misses by endpoint
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listing_cache_misses_total",
			Help: "Total number of listing API cache misses",
		},
		[]string{"endpoint"},
	)

	// CacheBytesWritten tracks bytes stored in Redis
	CacheBytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "listing_cache_written_bytes_total",
			Help: "Total bytes written to the listing API cache",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listing_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
