package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/bostadspriser-client/internal/testutil"
	"github.com/Sternrassler/bostadspriser-client/pkg/client"
	"github.com/Sternrassler/bostadspriser-client/pkg/feed"
	"github.com/Sternrassler/bostadspriser-client/pkg/pagination"
)

func setupServer(t *testing.T, mock *testutil.MockAPI, mutate func(*client.Config)) *httptest.Server {
	t.Helper()

	cfg := client.DefaultConfig(mock.URL())
	if mutate != nil {
		mutate(&cfg)
	}
	apiClient, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	t.Cleanup(func() { apiClient.Close() })

	nop := zerolog.Nop()
	controller, err := feed.New(apiClient, feed.Config{PageSize: 10, Logger: &nop})
	if err != nil {
		t.Fatalf("feed.New() error = %v", err)
	}
	t.Cleanup(controller.Close)

	srv := newServer(serverDeps{
		feed:      controller,
		locations: apiClient,
		predictor: apiClient,
		batch:     pagination.NewBatchFetcher(apiClient, pagination.Config{PageSize: 10, MaxConcurrency: 2}),
		logger:    nop,
	})

	ts := httptest.NewServer(srv.router)
	t.Cleanup(ts.Close)
	return ts
}

func doRequest(t *testing.T, method, url, body string) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, data
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	handleHealth(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	mock := testutil.NewMockAPI(testutil.MakeListings(3))
	defer mock.Close()
	ts := setupServer(t, mock, nil)

	doRequest(t, http.MethodPost, ts.URL+"/feed/next", "")

	status, body := doRequest(t, http.MethodGet, ts.URL+"/metrics", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if !strings.Contains(string(body), "listing_api_requests_total") {
		t.Error("metrics output missing listing_api_requests_total")
	}
}

func TestFeedEndpoints(t *testing.T) {
	mock := testutil.NewMockAPI(testutil.MakeListings(15))
	defer mock.Close()
	ts := setupServer(t, mock, nil)

	var next nextResponse
	status, body := doRequest(t, http.MethodPost, ts.URL+"/feed/next", "")
	if status != http.StatusOK {
		t.Fatalf("POST /feed/next status = %d", status)
	}
	if err := json.Unmarshal(body, &next); err != nil {
		t.Fatalf("decode next: %v", err)
	}
	if !next.Issued || next.State.Offset != 10 || len(next.State.Listings) != 10 {
		t.Fatalf("first page = issued %v offset %d len %d, want true 10 10",
			next.Issued, next.State.Offset, len(next.State.Listings))
	}

	doRequest(t, http.MethodPost, ts.URL+"/feed/next", "")

	var state feed.State
	_, body = doRequest(t, http.MethodGet, ts.URL+"/feed", "")
	if err := json.Unmarshal(body, &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.Offset != 15 || len(state.Listings) != 15 {
		t.Errorf("state offset %d len %d, want 15 15", state.Offset, len(state.Listings))
	}
	if state.Listings[14].StreetAddress != "Street 14" {
		t.Errorf("last listing = %q, want Street 14", state.Listings[14].StreetAddress)
	}

	_, body = doRequest(t, http.MethodPost, ts.URL+"/feed/reset", "")
	state = feed.State{}
	if err := json.Unmarshal(body, &state); err != nil {
		t.Fatalf("decode reset: %v", err)
	}
	if state.Offset != 0 || len(state.Listings) != 0 {
		t.Errorf("after reset offset %d len %d, want 0 0", state.Offset, len(state.Listings))
	}

	want := []testutil.ListingsRequest{{N: 10, Skip: 0}, {N: 10, Skip: 10}}
	got := mock.ListingsRequests()
	if len(got) != len(want) {
		t.Fatalf("listings requests = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("request %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestFeedNext_UpstreamFailureLeavesState(t *testing.T) {
	mock := testutil.NewMockAPI(nil)
	defer mock.Close()
	mock.SetResponse("/listings", testutil.MockResponse{StatusCode: http.StatusInternalServerError, Body: "oops"})
	ts := setupServer(t, mock, nil)

	var next nextResponse
	_, body := doRequest(t, http.MethodPost, ts.URL+"/feed/next", "")
	if err := json.Unmarshal(body, &next); err != nil {
		t.Fatalf("decode next: %v", err)
	}
	if !next.Issued {
		t.Error("issued = false, want true")
	}
	if next.State.Offset != 0 || next.State.Loading || len(next.State.Listings) != 0 {
		t.Errorf("state after failure = %+v", next.State)
	}
}

func TestListingsAll(t *testing.T) {
	mock := testutil.NewMockAPI(testutil.MakeListings(23))
	defer mock.Close()
	ts := setupServer(t, mock, nil)

	status, body := doRequest(t, http.MethodGet, ts.URL+"/listings/all", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d, body %s", status, body)
	}
	var listings []client.Listing
	if err := json.Unmarshal(body, &listings); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listings) != 23 {
		t.Errorf("len = %d, want 23", len(listings))
	}
}

func TestLocationsEndpoint(t *testing.T) {
	mock := testutil.NewMockAPI(nil)
	defer mock.Close()
	mock.SetResponse("/locations", testutil.MockResponse{StatusCode: http.StatusOK, Body: `{"Stockholm":["Vasastan"]}`})
	ts := setupServer(t, mock, nil)

	status, body := doRequest(t, http.MethodGet, ts.URL+"/locations", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if string(body) != `{"Stockholm":["Vasastan"]}` {
		t.Errorf("body = %s", body)
	}
}

func TestPredictEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		lenient    bool
		upstream   testutil.MockResponse
		body       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "success",
			upstream:   testutil.MockResponse{StatusCode: http.StatusOK, Body: `{"price":4200000}`},
			body:       `{"livingArea":55}`,
			wantStatus: http.StatusOK,
			wantBody:   `{"price":4200000}`,
		},
		{
			name:       "upstream 404 relayed",
			upstream:   testutil.MockResponse{StatusCode: http.StatusNotFound, Body: `{"error":"no model"}`},
			body:       `{"livingArea":55}`,
			wantStatus: http.StatusNotFound,
			wantBody:   `{"error":"no model"}`,
		},
		{
			name:       "lenient 404 passes body",
			lenient:    true,
			upstream:   testutil.MockResponse{StatusCode: http.StatusNotFound, Body: `{"error":"no model"}`},
			body:       `{"livingArea":55}`,
			wantStatus: http.StatusOK,
			wantBody:   `{"error":"no model"}`,
		},
		{
			name:       "invalid request body",
			upstream:   testutil.MockResponse{StatusCode: http.StatusOK, Body: `{}`},
			body:       `{not json`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockAPI(nil)
			defer mock.Close()
			mock.SetResponse("/predict", tt.upstream)
			ts := setupServer(t, mock, func(c *client.Config) { c.LenientPredict = tt.lenient })

			status, body := doRequest(t, http.MethodPost, ts.URL+"/predict", tt.body)
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", status, tt.wantStatus, body)
			}
			if tt.wantBody != "" && string(body) != tt.wantBody {
				t.Errorf("body = %s, want %s", body, tt.wantBody)
			}
		})
	}
}

func TestPredictEndpoint_ForwardsPayload(t *testing.T) {
	mock := testutil.NewMockAPI(nil)
	defer mock.Close()
	ts := setupServer(t, mock, nil)

	doRequest(t, http.MethodPost, ts.URL+"/predict", `{"rooms":3,"livingArea":72}`)

	var got map[string]float64
	if err := json.Unmarshal(mock.LastBody(), &got); err != nil {
		t.Fatalf("decode forwarded body: %v", err)
	}
	if got["rooms"] != 3 || got["livingArea"] != 72 {
		t.Errorf("forwarded payload = %v", got)
	}
}

func TestUpstreamDown(t *testing.T) {
	mock := testutil.NewMockAPI(nil)
	ts := setupServer(t, mock, nil)
	mock.Close()

	status, _ := doRequest(t, http.MethodGet, ts.URL+"/locations", "")
	if status != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", status)
	}
}
