package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/bostadspriser-client/pkg/client"
	"github.com/Sternrassler/bostadspriser-client/pkg/logging"
)

// ErrMaxPages is returned when the collection did not end within MaxPages windows.
var ErrMaxPages = errors.New("max pages reached")

// Config holds batch fetcher configuration
type Config struct {
	// PageSize is the n value of every window
	PageSize int
	// MaxConcurrency is the number of windows fetched in parallel per round
	MaxConcurrency int
	// Timeout per window fetch
	Timeout time.Duration
	// MaxPages caps the total number of windows requested
	MaxPages int
}

// DefaultConfig returns safe default configuration
func DefaultConfig() Config {
	return Config{
		PageSize:       50,
		MaxConcurrency: 4,
		Timeout:        15 * time.Second,
		MaxPages:       1000,
	}
}

// PageFetcher fetches a single window of listings. *client.Client implements it.
type PageFetcher interface {
	FetchListings(ctx context.Context, count, offset int) ([]client.Listing, error)
}

// PageResult represents the result of fetching a single window
type PageResult struct {
	Offset   int
	Listings []client.Listing
	Error    error
}

// BatchFetcher fetches all listings using parallel windows
type BatchFetcher struct {
	fetcher PageFetcher
	config  Config
	logger  zerolog.Logger
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher(fetcher PageFetcher, config Config) *BatchFetcher {
	defaults := DefaultConfig()
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = defaults.MaxConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxPages <= 0 {
		config.MaxPages = defaults.MaxPages
	}

	return &BatchFetcher{
		fetcher: fetcher,
		config:  config,
		logger:  logging.NewLogger(logging.ComponentPagination),
	}
}

// FetchAll fetches the whole collection in offset order.
//
// Only an empty window ends the collection. A window that returns a
// different count than requested is taken as the server's page size: the
// windows after it in the same round are discarded and the next round
// continues at the first unseen offset with the received count as window
// size.
//
// On error the listings fetched before the first failing window are returned
// together with the error.
func (bf *BatchFetcher) FetchAll(ctx context.Context) ([]client.Listing, error) {
	start := time.Now()
	var all []client.Listing

	windowSize := bf.config.PageSize
	offset := 0

	for requested := 0; requested < bf.config.MaxPages; {
		windows := bf.config.MaxConcurrency
		if remaining := bf.config.MaxPages - requested; windows > remaining {
			windows = remaining
		}

		results := bf.fetchRound(ctx, offset, windowSize, windows)
		requested += windows

	round:
		for _, result := range results {
			if result.Error != nil {
				bf.logger.Warn().
					Err(result.Error).
					Int("offset", result.Offset).
					Int("fetched", len(all)).
					Msg("Window fetch failed - returning partial results")
				return all, fmt.Errorf("fetch window at offset %d (partial data: %d listings): %w", result.Offset, len(all), result.Error)
			}

			received := len(result.Listings)
			if received == 0 {
				bf.logger.Info().
					Int("listings", len(all)).
					Int("windows", requested).
					Dur("duration", time.Since(start)).
					Msg("Fetch complete")
				return all, nil
			}

			all = append(all, result.Listings...)
			offset += received

			if received != windowSize {
				bf.logger.Debug().
					Int("offset", result.Offset).
					Int("requested", windowSize).
					Int("received", received).
					Msg("Window size mismatch, adjusting window size")
				windowSize = received
				break round
			}
		}

		bf.logger.Debug().
			Int("fetched", len(all)).
			Int("windows", requested).
			Msg("Fetch progress")
	}

	bf.logger.Warn().
		Int("max_pages", bf.config.MaxPages).
		Int("listings", len(all)).
		Msg("Max pages reached before the end of the collection")
	return all, fmt.Errorf("%w (%d windows, %d listings)", ErrMaxPages, bf.config.MaxPages, len(all))
}

// fetchRound fetches n consecutive windows of size starting at first in
// parallel. Results are ordered by window index; each slot holds its own
// error. A failing window does not cancel its siblings, since an earlier
// window may already end the collection.
func (bf *BatchFetcher) fetchRound(ctx context.Context, first, size, n int) []PageResult {
	results := make([]PageResult, n)
	var g errgroup.Group

	for i := 0; i < n; i++ {
		offset := first + i*size
		results[i].Offset = offset

		g.Go(func() error {
			pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
			defer cancel()

			listings, err := bf.fetcher.FetchListings(pageCtx, size, offset)
			if err != nil {
				results[i].Error = err
				return err
			}
			results[i].Listings = listings
			return nil
		})
	}

	// Per-window errors are kept in results.
	_ = g.Wait()
	return results
}
