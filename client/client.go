// Package client is the public entry point: it wires the profile registry,
// metadata client, script decipherer, resolution cache, local mirror, and
// playback orchestrator into one service object.
package client

import (
	"context"
	"net/http"
	"time"

	"github.com/famomatic/playflow/internal/innertube"
	"github.com/famomatic/playflow/internal/localcache"
	"github.com/famomatic/playflow/internal/playback"
	"github.com/famomatic/playflow/internal/playerjs"
	"github.com/famomatic/playflow/internal/resolver"
	"github.com/famomatic/playflow/internal/streamcache"
)

// StreamInfo is the resolved form of a track: a playable URL plus the
// request headers and validity window that go with it.
type StreamInfo = resolver.StreamInfo

// Engine re-exports the media engine abstraction for embedders.
type Engine = playback.Engine

// QueueItem re-exports the engine queue entry type.
type QueueItem = playback.QueueItem

// Client resolves opaque track ids into playable stream URLs with caching,
// prefetch, and optional local mirroring.
type Client struct {
	registry innertube.Registry
	streams  *resolver.StreamResolver
	cache    *streamcache.Cache
	local    *localcache.Cache
	cfg      Config
}

func New(cfg Config) (*Client, error) {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	registry := innertube.NewRegistryWithOrder(cfg.ProfileOrder)

	meta := innertube.NewClient(innertube.ClientConfig{
		HTTPClient:        cfg.HTTPClient,
		BaseURL:           cfg.MetadataBaseURL,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
	scripts := playerjs.NewResolver(cfg.HTTPClient, playerjs.NewCache(), playerjs.ResolverConfig{
		BaseURL: cfg.ScriptBaseURL,
	})
	profiles := resolver.NewClientResolver(meta, scripts, resolver.ClientResolverConfig{
		HTTPClient:          cfg.HTTPClient,
		ConfirmReachability: cfg.ConfirmReachability,
	})
	streams := resolver.NewStreamResolver(registry, profiles)
	cache := streamcache.New(streams, streamcache.Config{
		TTL:           cfg.CacheTTL,
		MaxRetries:    cfg.MaxRetries,
		PrefetchAhead: cfg.PrefetchAhead,
	})

	var local *localcache.Cache
	if cfg.LocalCacheDir != "" {
		var err error
		local, err = localcache.New(localcache.Config{
			Dir:        cfg.LocalCacheDir,
			TTL:        cfg.LocalCacheTTL,
			HTTPClient: cfg.HTTPClient,
		})
		if err != nil {
			return nil, err
		}
	}

	return &Client{
		registry: registry,
		streams:  streams,
		cache:    cache,
		local:    local,
		cfg:      cfg,
	}, nil
}

// Resolve returns a playable stream for trackID, served from cache when
// fresh and resolved through the profile fallback chain otherwise.
func (c *Client) Resolve(ctx context.Context, trackID string) (*StreamInfo, error) {
	return c.cache.EnsureResolved(ctx, trackID)
}

// ResolveExcluding bypasses the cache and resolves trackID directly,
// skipping the named client profiles. Used by callers that manage their own
// failure state.
func (c *Client) ResolveExcluding(ctx context.Context, trackID string, excludeClients []string) (*StreamInfo, error) {
	exclude := make(map[string]struct{}, len(excludeClients))
	for _, name := range excludeClients {
		exclude[name] = struct{}{}
	}
	return c.streams.ResolveStreamURL(ctx, trackID, exclude)
}

// PrefetchAhead warms the cache for the entries after currentIndex.
func (c *Client) PrefetchAhead(orderedIDs []string, currentIndex int) {
	c.cache.PrefetchAhead(orderedIDs, currentIndex)
}

// IsBlacklisted reports whether trackID is permanently excluded.
func (c *Client) IsBlacklisted(trackID string) bool {
	return c.cache.IsBlacklisted(trackID)
}

// EvictStale drops cache entries whose URLs may have expired.
func (c *Client) EvictStale() int {
	return c.cache.EvictStale()
}

// AttachEngine builds a playback orchestrator bound to engine. Feed the
// engine's events into the returned orchestrator; it handles just-in-time
// resolution, hot-swapping, and error recovery.
func (c *Client) AttachEngine(engine Engine) *playback.Orchestrator {
	var mirror playback.LocalMirror
	if c.local != nil {
		mirror = c.local
	}
	return playback.NewOrchestrator(engine, c.cache, mirror, playback.Config{
		DownloadTimeout: c.cfg.DownloadTimeout,
	})
}
