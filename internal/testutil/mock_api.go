// Package testutil provides testing utilities for the listing API client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/Sternrassler/bostadspriser-client/pkg/client"
)

// MockResponse defines a canned response for a mock endpoint.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// ListingsRequest records the query of one /listings call.
type ListingsRequest struct {
	N    int
	Skip int
}

// MockAPI is a configurable mock listing API server.
//
// By default /listings pages through Listings honoring n and skip,
// /locations returns an empty object and /predict echoes {"price": 0}.
type MockAPI struct {
	server   *httptest.Server
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	listings []client.Listing

	listingsDelay time.Duration

	requestCount      int
	listingsRequests  []ListingsRequest
	inFlight          int
	maxInFlight       int
	lastRequestHeader http.Header
	lastBody          []byte
}

// NewMockAPI creates a new mock API server serving listings.
func NewMockAPI(listings []client.Listing) *MockAPI {
	mock := &MockAPI{
		handlers: make(map[string]http.HandlerFunc),
		listings: listings,
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.lastRequestHeader = r.Header.Clone()
		if r.Body != nil {
			var raw json.RawMessage
			if err := json.NewDecoder(r.Body).Decode(&raw); err == nil {
				mock.lastBody = raw
			}
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}
		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// SetHandler sets a custom handler for a specific path.
func (m *MockAPI) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a canned response for a path.
func (m *MockAPI) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetListingsDelay keeps every default /listings request in flight for d
// before it is answered, so overlapping requests show up in MaxInFlight.
func (m *MockAPI) SetListingsDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listingsDelay = d
}

// RequestCount returns the number of requests made to the server.
func (m *MockAPI) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// ListingsRequests returns every /listings query served by the default handler.
func (m *MockAPI) ListingsRequests() []ListingsRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ListingsRequest(nil), m.listingsRequests...)
}

// MaxInFlight returns the highest number of concurrent /listings requests seen.
func (m *MockAPI) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockAPI) LastRequestHeader() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRequestHeader
}

// LastBody returns the JSON body of the most recent request that had one.
func (m *MockAPI) LastBody() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastBody
}

func (m *MockAPI) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	switch r.URL.Path {
	case "/listings":
		m.serveListings(w, r)
	case "/locations":
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	case "/predict":
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"price": 0}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": "not found"}`))
	}
}

func (m *MockAPI) serveListings(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.URL.Query().Get("n"))
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error": "bad n: %v"}`, err), http.StatusBadRequest)
		return
	}
	skip, err := strconv.Atoi(r.URL.Query().Get("skip"))
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error": "bad skip: %v"}`, err), http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.listingsRequests = append(m.listingsRequests, ListingsRequest{N: n, Skip: skip})
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	page := window(m.listings, n, skip)
	delay := m.listingsDelay
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(page)
}

func window(listings []client.Listing, n, skip int) []client.Listing {
	if skip >= len(listings) {
		return []client.Listing{}
	}
	end := skip + n
	if end > len(listings) {
		end = len(listings)
	}
	return listings[skip:end]
}

// MakeListings generates n distinct listings with addresses "Street 0".."Street n-1".
func MakeListings(n int) []client.Listing {
	listings := make([]client.Listing, n)
	for i := range listings {
		listings[i] = client.Listing{
			StreetAddress:    fmt.Sprintf("Street %d", i),
			AskingPrice:      float64(1_000_000 + i*10_000),
			Fee:              3000,
			LivingArea:       55,
			Rooms:            2,
			ConstructionYear: 1960,
			HousingForm:      "Lägenhet",
			URL:              fmt.Sprintf("https://www.hemnet.se/bostad/%d", i),
		}
	}
	return listings
}
