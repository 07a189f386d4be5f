package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/bostadspriser-client/pkg/cache"
	"github.com/Sternrassler/bostadspriser-client/pkg/client"
	"github.com/Sternrassler/bostadspriser-client/pkg/feed"
	"github.com/Sternrassler/bostadspriser-client/pkg/metrics"
)

const maxPredictBody = 1 << 20

type predictor interface {
	Predict(ctx context.Context, payload any) (json.RawMessage, error)
}

type collector interface {
	FetchAll(ctx context.Context) ([]client.Listing, error)
}

type serverDeps struct {
	feed      *feed.Controller
	locations cache.LocationsFetcher
	predictor predictor
	batch     collector
	logger    zerolog.Logger
}

type server struct {
	serverDeps
	router chi.Router
}

type nextResponse struct {
	Issued bool       `json:"issued"`
	State  feed.State `json:"state"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func newServer(deps serverDeps) *server {
	s := &server{serverDeps: deps}
	s.setupRoutes()
	return s
}

func (s *server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/feed", func(r chi.Router) {
		r.Get("/", s.handleFeed)
		r.Post("/next", s.handleNext)
		r.Post("/reset", s.handleReset)
	})

	r.Get("/listings/all", s.handleAll)
	r.Get("/locations", s.handleLocations)
	r.Post("/predict", s.handlePredict)

	s.router = r
}

func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Handled request")
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "OK")
}

func (s *server) handleFeed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.feed.State())
}

func (s *server) handleNext(w http.ResponseWriter, r *http.Request) {
	issued := s.feed.NextPage(r.Context())
	writeJSON(w, http.StatusOK, nextResponse{Issued: issued, State: s.feed.State()})
}

func (s *server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.feed.Reset()
	writeJSON(w, http.StatusOK, s.feed.State())
}

func (s *server) handleAll(w http.ResponseWriter, r *http.Request) {
	listings, err := s.batch.FetchAll(r.Context())
	if err != nil {
		s.logger.Warn().Err(err).Int("partial", len(listings)).Msg("Batch fetch failed")
		s.writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listings)
}

func (s *server) handleLocations(w http.ResponseWriter, r *http.Request) {
	doc, err := s.locations.FetchLocations(r.Context())
	if err != nil {
		s.writeAPIError(w, err)
		return
	}
	writeRaw(w, http.StatusOK, doc)
}

func (s *server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var payload json.RawMessage
	if err := json.NewDecoder(io.LimitReader(r.Body, maxPredictBody)).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body: " + err.Error()})
		return
	}

	result, err := s.predictor.Predict(r.Context(), payload)
	if err != nil {
		s.writeAPIError(w, err)
		return
	}
	writeRaw(w, http.StatusOK, result)
}

// writeAPIError relays an upstream server error with its status and body;
// every other failure becomes 502.
func (s *server) writeAPIError(w http.ResponseWriter, err error) {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Class == client.ErrorClassServer && apiErr.StatusCode != 0 {
		if json.Valid(apiErr.Body) {
			writeRaw(w, apiErr.StatusCode, apiErr.Body)
			return
		}
		writeJSON(w, apiErr.StatusCode, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
