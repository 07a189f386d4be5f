// Package client provides the HTTP client for the bostadspriser listing API:
// paged listings, locations and price predictions.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/bostadspriser-client/pkg/logging"
)

// Prometheus metrics for listing API operations.
var (
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listing_api_requests_total",
		Help: "Total listing API requests by operation and status",
	}, []string{"op", "status"})

	apiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "listing_api_request_duration_seconds",
		Help:    "Listing API call duration in seconds by operation, retries included",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"op"})

	apiErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listing_api_errors_total",
		Help: "Total listing API errors by operation and class",
	}, []string{"op", "class"})
)

const (
	// DefaultPageSize is used when FetchListings is called with count <= 0.
	DefaultPageSize = 10

	// DefaultBaseURL is the local development API.
	DefaultBaseURL = "http://localhost:8080"

	// DefaultMaxResponseBytes bounds a single response body.
	DefaultMaxResponseBytes = 10 << 20
)

// Config holds the client configuration.
type Config struct {
	// BaseURL of the listing API, e.g. "http://localhost:8080".
	BaseURL string

	// UserAgent header sent with every request. Empty leaves Go's default.
	UserAgent string

	// Timeout per HTTP attempt.
	Timeout time.Duration

	// Retry controls retries of network and 5xx failures. The default
	// performs a single attempt.
	Retry RetryConfig

	// LenientPredict returns the /predict body even for non-2xx statuses
	// instead of a server error.
	LenientPredict bool

	// MaxResponseBytes bounds a response body. Larger bodies fail with
	// ErrResponseTooLarge. Zero means DefaultMaxResponseBytes.
	MaxResponseBytes int64

	// HTTPClient overrides the transport (for testing). Timeout is ignored
	// when set.
	HTTPClient *http.Client
}

// DefaultConfig returns a safe default configuration for baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: "bostadspriser-client/0.1.0",
		Timeout:   30 * time.Second,
		Retry:     DefaultRetryConfig(),

		MaxResponseBytes: DefaultMaxResponseBytes,
	}
}

// Client talks to the listing API. It holds no per-call state and is safe
// for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	config     Config
	logger     zerolog.Logger
}

// New creates a new listing API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("base url must be an absolute http(s) url (got %q)", cfg.BaseURL)
	}

	if cfg.MaxResponseBytes < 0 {
		return nil, fmt.Errorf("max response bytes must be >= 0 (got %d)", cfg.MaxResponseBytes)
	}
	if cfg.MaxResponseBytes == 0 {
		cfg.MaxResponseBytes = DefaultMaxResponseBytes
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		if cfg.Timeout <= 0 {
			return nil, fmt.Errorf("timeout must be > 0 (got %s)", cfg.Timeout)
		}
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    base,
		config:     cfg,
		logger:     logging.NewLogger(logging.ComponentClient),
	}, nil
}

// BaseURL returns the parsed API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// FetchListings returns up to count listings starting at offset.
// count <= 0 means DefaultPageSize and a negative offset means 0.
// The HTTP status is not inspected as long as the body decodes.
func (c *Client) FetchListings(ctx context.Context, count, offset int) ([]Listing, error) {
	if count <= 0 {
		count = DefaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	query := url.Values{}
	query.Set("n", strconv.Itoa(count))
	query.Set("skip", strconv.Itoa(offset))

	var listings []Listing
	err := c.call(ctx, "listings", http.MethodGet, "/listings", query, nil, func(status int, body []byte) error {
		listings = nil
		if err := json.Unmarshal(body, &listings); err != nil {
			return decodeFailure("listings", status, body, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Int("n", count).
		Int("skip", offset).
		Int("returned", len(listings)).
		Msg("Fetched listings")

	return listings, nil
}

// FetchLocations returns the raw /locations document.
func (c *Client) FetchLocations(ctx context.Context) (json.RawMessage, error) {
	var doc json.RawMessage
	err := c.call(ctx, "locations", http.MethodGet, "/locations", nil, nil, func(status int, body []byte) error {
		if !json.Valid(body) {
			return decodeFailure("locations", status, body, errors.New("invalid json"))
		}
		doc = json.RawMessage(body)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Predict posts payload as JSON to /predict and returns the raw response.
// Non-2xx statuses yield an *APIError of class server carrying the body,
// unless LenientPredict is set.
func (c *Client) Predict(ctx context.Context, payload any) (json.RawMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal predict payload: %w", err)
	}

	var result json.RawMessage
	err = c.call(ctx, "predict", http.MethodPost, "/predict", nil, data, func(status int, body []byte) error {
		if !isSuccess(status) && !c.config.LenientPredict {
			return &APIError{
				Op:         "predict",
				Class:      ErrorClassServer,
				StatusCode: status,
				Body:       body,
				Err:        fmt.Errorf("unexpected status %d", status),
			}
		}
		if !json.Valid(body) {
			return decodeFailure("predict", status, body, errors.New("invalid json"))
		}
		result = json.RawMessage(body)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// call executes one logical API call, retrying per config. handle decodes
// the body of each attempt and decides whether the attempt failed.
func (c *Client) call(ctx context.Context, op, method, path string, query url.Values, payload []byte, handle func(status int, body []byte) error) error {
	endpoint := c.baseURL.JoinPath(path)
	endpoint.RawQuery = query.Encode()
	target := endpoint.String()

	startTime := time.Now()
	defer func() {
		apiRequestDuration.WithLabelValues(op).Observe(time.Since(startTime).Seconds())
	}()

	return retryWithBackoff(ctx, c.config.Retry, op, c.logger, func() error {
		status, body, err := c.roundTrip(ctx, op, method, target, payload)
		if err == nil {
			err = handle(status, body)
		}
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				apiErrorsTotal.WithLabelValues(op, string(apiErr.Class)).Inc()
			}
			return err
		}
		return nil
	})
}

// roundTrip performs a single HTTP attempt and reads the whole body.
func (c *Client) roundTrip(ctx context.Context, op, method, target string, payload []byte) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	c.logger.Debug().
		Str("op", op).
		Str("method", method).
		Str("url", target).
		Msg("Executing listing API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("op", op).Msg("HTTP request failed")
		apiRequestsTotal.WithLabelValues(op, "network_error").Inc()
		return 0, nil, &APIError{Op: op, Class: ErrorClassNetwork, Err: err}
	}
	defer resp.Body.Close()

	limit := c.config.MaxResponseBytes
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err == nil && int64(len(body)) > limit {
		apiRequestsTotal.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()
		c.logger.Warn().
			Str("op", op).
			Int("status", resp.StatusCode).
			Int64("limit", limit).
			Msg("Listing API response exceeds size limit")
		return 0, nil, &APIError{
			Op:         op,
			Class:      ErrorClassNetwork,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w (limit %d bytes)", ErrResponseTooLarge, limit),
		}
	}
	if err != nil {
		apiRequestsTotal.WithLabelValues(op, "network_error").Inc()
		return 0, nil, &APIError{
			Op:         op,
			Class:      ErrorClassNetwork,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("read response body: %w", err),
		}
	}

	apiRequestsTotal.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()
	if !isSuccess(resp.StatusCode) {
		c.logger.Debug().
			Str("op", op).
			Int("status", resp.StatusCode).
			Msg("Listing API returned non-2xx status")
	}

	return resp.StatusCode, body, nil
}

// decodeFailure classifies an undecodable body: decode for 2xx, server otherwise.
func decodeFailure(op string, status int, body []byte, err error) *APIError {
	class := ErrorClassDecode
	if !isSuccess(status) {
		class = ErrorClassServer
	}
	return &APIError{
		Op:         op,
		Class:      class,
		StatusCode: status,
		Body:       body,
		Err:        fmt.Errorf("decode response: %w", err),
	}
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
