// Package cache provides caching of listing API documents with a Redis backend.
//
// The Fetch Client itself never caches. This package offers an opt-in
// decorator for documents that rarely change, such as /locations:
//
//   - TTL-based expiry enforced both by Redis and on read
//   - Deterministic cache key generation
//   - Prometheus metrics for hits, misses and errors
//   - Cache failures degrade to a direct API call
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient)
//	locations := cache.NewLocationsCache(apiClient, manager, 10*time.Minute, logger)
//
//	doc, err := locations.FetchLocations(ctx)
//
// # Cache Keys
//
// Keys have the form bostad:<endpoint>[:<query>=<value>...] with query
// parameters sorted by name, e.g. bostad:listings:n=10:skip=20.
//
// # Metrics
//
//   - listing_cache_hits_total{endpoint}
//   - listing_cache_misses_total{endpoint}
//   - listing_cache_written_bytes_total
//   - listing_cache_errors_total{operation}
package cache
