// Command feed-server runs a listing feed against the listing API and exposes
// it over HTTP for headless use.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/Sternrassler/bostadspriser-client/internal/config"
	"github.com/Sternrassler/bostadspriser-client/pkg/cache"
	"github.com/Sternrassler/bostadspriser-client/pkg/client"
	"github.com/Sternrassler/bostadspriser-client/pkg/feed"
	"github.com/Sternrassler/bostadspriser-client/pkg/logging"
	"github.com/Sternrassler/bostadspriser-client/pkg/pagination"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a YAML config file")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "feed-server: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(cfg.LoggingConfig())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("feed-server failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logging.NewLogger(logging.ComponentServer)

	apiClient, err := client.New(cfg.ClientConfig())
	if err != nil {
		return fmt.Errorf("create listing client: %w", err)
	}
	defer apiClient.Close()

	controller, err := feed.New(apiClient, feed.Config{PageSize: cfg.Feed.PageSize})
	if err != nil {
		return fmt.Errorf("create feed: %w", err)
	}
	defer controller.Close()

	var locations cache.LocationsFetcher = apiClient
	if cfg.CacheEnabled() {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("address", cfg.Redis.Address).Msg("Redis unreachable, locations cache will fall back to the API")
		} else {
			logger.Info().Str("address", cfg.Redis.Address).Msg("Connected to Redis")
		}
		locations = cache.NewLocationsCache(apiClient, cache.NewManager(redisClient), cfg.Redis.LocationsTTL, log.Logger)
	}

	srv := newServer(serverDeps{
		feed:      controller,
		locations: locations,
		predictor: apiClient,
		batch:     pagination.NewBatchFetcher(apiClient, pagination.DefaultConfig()),
		logger:    logger,
	})

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.Server.Addr).
			Str("api", apiClient.BaseURL()).
			Int("page_size", cfg.Feed.PageSize).
			Msg("Starting feed server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down feed server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
