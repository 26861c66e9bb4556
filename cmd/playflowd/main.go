// Command playflowd runs the stream resolution service: an HTTP API over
// the profile-fallback resolver with TTL caching and Prometheus metrics.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/famomatic/playflow/client"
	"github.com/famomatic/playflow/internal/config"
	"github.com/famomatic/playflow/internal/httpapi"
	"github.com/famomatic/playflow/internal/log"
)

func main() {
	// Optional; a missing .env just means the environment is already set.
	godotenv.Load() //nolint:errcheck

	cfg, err := config.FromEnv()
	if err != nil {
		log.Configure(log.Config{})
		base := log.Base()
		base.Fatal().Err(err).Msg("invalid configuration")
	}
	log.Configure(log.Config{Level: cfg.LogLevel})
	logger := log.WithComponent("main")

	c, err := client.New(client.Config{
		HTTPClient:          &http.Client{Timeout: 30 * time.Second},
		ProfileOrder:        cfg.ProfileOrder,
		ConfirmReachability: cfg.ConfirmReachability,
		CacheTTL:            cfg.CacheTTL,
		MaxRetries:          cfg.MaxRetries,
		PrefetchAhead:       cfg.PrefetchAhead,
		LocalCacheDir:       cfg.LocalCacheDir,
		LocalCacheTTL:       cfg.LocalCacheTTL,
		DownloadTimeout:     cfg.DownloadTimeout,
		RequestsPerSecond:   cfg.RequestsPerSecond,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("client init failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Periodic TTL sweep keeps the cache from serving expired URLs.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if dropped := c.EvictStale(); dropped > 0 {
					logger.Debug().Int("dropped", dropped).Msg("evicted stale cache entries")
				}
			}
		}
	}()

	srv := httpapi.NewServer(c)
	if err := srv.Serve(ctx, cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("http server failed")
	}
	logger.Info().Msg("shutdown complete")
}
