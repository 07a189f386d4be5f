package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/bostadspriser-client/pkg/logging"
)

// DefaultLocationsTTL is how long a /locations document is served from cache.
const DefaultLocationsTTL = 10 * time.Minute

var locationsKey = CacheKey{Endpoint: "/locations"}

// LocationsFetcher fetches the raw /locations document. *client.Client implements it.
type LocationsFetcher interface {
	FetchLocations(ctx context.Context) (json.RawMessage, error)
}

// LocationsCache serves /locations from Redis and falls back to the API.
// Cache failures are logged and never fail a call.
type LocationsCache struct {
	fetcher LocationsFetcher
	manager *Manager
	ttl     time.Duration
	logger  zerolog.Logger
}

// NewLocationsCache wraps fetcher with a cache. ttl <= 0 means DefaultLocationsTTL.
func NewLocationsCache(fetcher LocationsFetcher, manager *Manager, ttl time.Duration, logger zerolog.Logger) *LocationsCache {
	if ttl <= 0 {
		ttl = DefaultLocationsTTL
	}
	return &LocationsCache{
		fetcher: fetcher,
		manager: manager,
		ttl:     ttl,
		logger:  logger.With().Str("component", logging.ComponentCache).Logger(),
	}
}

// FetchLocations implements LocationsFetcher.
func (c *LocationsCache) FetchLocations(ctx context.Context) (json.RawMessage, error) {
	entry, err := c.manager.Get(ctx, locationsKey)
	switch {
	case err == nil:
		c.logger.Debug().
			Dur("age", entry.Age()).
			Dur("ttl", entry.TTL()).
			Msg("Serving locations from cache")
		return entry.Data, nil
	case !errors.Is(err, ErrCacheMiss):
		c.logger.Warn().Err(err).Msg("Cache get error, fetching from API")
	}

	doc, err := c.fetcher.FetchLocations(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.manager.Set(ctx, locationsKey, NewEntry(doc, c.ttl)); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to cache locations")
	} else {
		c.logger.Debug().Dur("ttl", c.ttl).Msg("Cached locations")
	}

	return doc, nil
}

// Invalidate drops the cached document.
func (c *LocationsCache) Invalidate(ctx context.Context) error {
	return c.manager.Delete(ctx, locationsKey)
}
