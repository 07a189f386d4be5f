package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/Sternrassler/bostadspriser-client/pkg/client"
	"github.com/Sternrassler/bostadspriser-client/pkg/logging"
)

// Prometheus metrics for feed controllers.
var (
	feedPagesLoadedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_pages_loaded_total",
		Help: "Total number of successfully loaded feed pages",
	})

	feedPageFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_page_failures_total",
		Help: "Total number of failed feed page loads",
	})

	feedTriggersRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_triggers_rejected_total",
		Help: "Total number of NextPage calls that issued no request, by reason",
	}, []string{"reason"})

	feedListingsAppendedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_listings_appended_total",
		Help: "Total number of listings appended to feeds",
	})

	feedPageDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feed_page_duration_seconds",
		Help:    "Duration of feed page loads in seconds",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	})
)

// ErrInvalidPageSize is returned by New for a negative page size.
var ErrInvalidPageSize = errors.New("page size must be positive")

// Source fetches one page of listings. *client.Client implements it.
type Source interface {
	FetchListings(ctx context.Context, count, offset int) ([]client.Listing, error)
}

// PageRequest is the (count, offset) pair of a single page fetch.
type PageRequest struct {
	Count  int
	Offset int
}

// Observer is notified of page load outcomes. Calls happen on the goroutine
// that called NextPage, after the feed state has been updated. Outcomes of a
// request discarded by Reset or Close, successful or failed, are not
// reported.
type Observer interface {
	PageLoaded(req PageRequest, received int)
	PageFailed(req PageRequest, err error)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Loaded func(req PageRequest, received int)
	Failed func(req PageRequest, err error)
}

// PageLoaded implements Observer.
func (o ObserverFuncs) PageLoaded(req PageRequest, received int) {
	if o.Loaded != nil {
		o.Loaded(req, received)
	}
}

// PageFailed implements Observer.
func (o ObserverFuncs) PageFailed(req PageRequest, err error) {
	if o.Failed != nil {
		o.Failed(req, err)
	}
}

// Config holds controller configuration.
type Config struct {
	// PageSize is the count requested per page. Zero means client.DefaultPageSize.
	PageSize int

	// Observer receives page outcomes (optional).
	Observer Observer

	// Logger overrides the component logger (optional).
	Logger *zerolog.Logger
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{
		PageSize: client.DefaultPageSize,
	}
}

// State is a snapshot of a feed.
type State struct {
	Listings  []client.Listing `json:"listings"`
	Offset    int              `json:"offset"`
	Loading   bool             `json:"loading"`
	Exhausted bool             `json:"exhausted"`
}

// Controller maintains a feed of listings loaded page by page.
type Controller struct {
	source   Source
	config   Config
	logger   zerolog.Logger
	inflight *semaphore.Weighted

	mu         sync.RWMutex
	listings   []client.Listing
	offset     int
	loading    bool
	exhausted  bool
	closed     bool
	generation uint64
}

// New creates a controller reading pages from source.
func New(source Source, cfg Config) (*Controller, error) {
	if source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if cfg.PageSize < 0 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidPageSize, cfg.PageSize)
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = client.DefaultPageSize
	}

	logger := logging.NewLogger(logging.ComponentFeed)
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Controller{
		source:   source,
		config:   cfg,
		logger:   logger,
		inflight: semaphore.NewWeighted(1),
	}, nil
}

// NextPage loads the next page and blocks until it resolves. It returns
// false without issuing a request if one is already in flight, the feed is
// exhausted or the controller is closed.
//
// The offset is captured when the request is issued. On success the
// returned listings are appended and the offset advances by the number
// actually received. On failure the state is left unchanged.
func (c *Controller) NextPage(ctx context.Context) bool {
	if !c.inflight.TryAcquire(1) {
		feedTriggersRejectedTotal.WithLabelValues("in_flight").Inc()
		c.logger.Debug().Msg("Page request already in flight, trigger ignored")
		return false
	}
	defer c.inflight.Release(1)

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		feedTriggersRejectedTotal.WithLabelValues("closed").Inc()
		return false
	case c.exhausted:
		c.mu.Unlock()
		feedTriggersRejectedTotal.WithLabelValues("exhausted").Inc()
		return false
	}
	req := PageRequest{Count: c.config.PageSize, Offset: c.offset}
	generation := c.generation
	c.loading = true
	c.mu.Unlock()

	c.logger.Debug().
		Int("count", req.Count).
		Int("offset", req.Offset).
		Msg("Requesting feed page")

	start := time.Now()
	items, err := c.source.FetchListings(ctx, req.Count, req.Offset)
	feedPageDuration.Observe(time.Since(start).Seconds())

	c.mu.Lock()
	c.loading = false
	if c.closed || generation != c.generation {
		c.mu.Unlock()
		c.logger.Debug().
			Err(err).
			Int("offset", req.Offset).
			Int("received", len(items)).
			Msg("Discarding page result for a closed or reset feed")
		return true
	}
	if err == nil {
		c.listings = append(c.listings, items...)
		c.offset += len(items)
		if len(items) == 0 {
			c.exhausted = true
		}
	}
	total := c.offset
	c.mu.Unlock()

	if err != nil {
		feedPageFailuresTotal.Inc()
		c.logger.Warn().
			Err(err).
			Int("count", req.Count).
			Int("offset", req.Offset).
			Msg("Feed page load failed")
		if c.config.Observer != nil {
			c.config.Observer.PageFailed(req, err)
		}
		return true
	}

	feedPagesLoadedTotal.Inc()
	feedListingsAppendedTotal.Add(float64(len(items)))
	c.logger.Info().
		Int("offset", req.Offset).
		Int("received", len(items)).
		Int("total", total).
		Dur("duration", time.Since(start)).
		Msg("Feed page loaded")
	if c.config.Observer != nil {
		c.config.Observer.PageLoaded(req, len(items))
	}
	return true
}

// State returns a snapshot of the feed. The listing slice is a copy.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return State{
		Listings:  append([]client.Listing(nil), c.listings...),
		Offset:    c.offset,
		Loading:   c.loading,
		Exhausted: c.exhausted,
	}
}

// Listings returns a copy of the loaded listings in arrival order.
func (c *Controller) Listings() []client.Listing {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]client.Listing(nil), c.listings...)
}

// Offset returns the skip value of the next page request.
func (c *Controller) Offset() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}

// Loading reports whether a page request is in flight.
func (c *Controller) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

// Exhausted reports whether an empty page has been received.
func (c *Controller) Exhausted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.exhausted
}

// Reset empties the feed. A page in flight when Reset is called is
// discarded on arrival.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.listings = nil
	c.offset = 0
	c.exhausted = false
	c.generation++
	c.logger.Debug().Msg("Feed reset")
}

// Close discards the feed. An in-flight request is not cancelled but its
// result is dropped, and later NextPage calls are no-ops.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.listings = nil
	c.offset = 0
}
