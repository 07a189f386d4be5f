package cache

import (
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces every cache key in Redis.
const KeyPrefix = "bostad"

// CacheKey identifies a cached API document.
type CacheKey struct {
	// Endpoint is the API path (e.g., "/locations")
	Endpoint string

	// QueryParams are the query parameters (e.g., {"n": "10"})
	QueryParams url.Values
}

// String generates a deterministic cache key string.
// Format: bostad:endpoint:query1=val1:query2=val2
//
// Example:
//
//	bostad:listings:n=10:skip=20
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	if endpoint := strings.Trim(k.Endpoint, "/"); endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, key+"="+strings.Join(k.QueryParams[key], ","))
		}
	}

	return strings.Join(parts, ":")
}
