// Package streamcache keeps resolved stream URLs warm: a TTL cache with
// single-flight resolution, look-ahead prefetch, per-track failed-client
// memory, and a bounded-retry blacklist.
package streamcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/famomatic/playflow/internal/log"
	"github.com/famomatic/playflow/internal/metrics"
	"github.com/famomatic/playflow/internal/resolver"
)

// ErrBlacklisted marks a track id permanently excluded from resolution for
// the rest of the process lifetime.
var ErrBlacklisted = errors.New("track is blacklisted")

// StreamResolver is the upstream resolution entry point.
type StreamResolver interface {
	ResolveStreamURL(ctx context.Context, trackID string, exclude map[string]struct{}) (*resolver.StreamInfo, error)
}

// Config tunes the cache.
type Config struct {
	// TTL bounds how long an entry is served without re-resolution. The
	// effective deadline is always capped by the entry's own ExpiresAt.
	TTL time.Duration
	// MaxRetries bounds playback-time re-resolution attempts per id before
	// the id is blacklisted.
	MaxRetries int
	// PrefetchAhead is how many upcoming queue entries are resolved in the
	// background.
	PrefetchAhead int
	// RetryDelay is the pause before the single internal retry of a failed
	// foreground resolution.
	RetryDelay time.Duration
}

type cacheEntry struct {
	info       resolver.StreamInfo
	resolvedAt time.Time
}

type failureMemory struct {
	clients map[string]struct{}
	retries int
}

// Cache is the process-wide resolution cache. Construct one per process and
// inject it wherever resolutions are needed.
type Cache struct {
	upstream StreamResolver
	cfg      Config
	logger   zerolog.Logger

	group singleflight.Group

	mu        sync.Mutex
	entries   map[string]cacheEntry
	pending   map[string]struct{}
	failures  map[string]*failureMemory
	blacklist map[string]struct{}

	now func() time.Time
}

func New(upstream StreamResolver, cfg Config) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.PrefetchAhead <= 0 {
		cfg.PrefetchAhead = 2
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	return &Cache{
		upstream:  upstream,
		cfg:       cfg,
		logger:    log.WithComponent("streamcache"),
		entries:   make(map[string]cacheEntry),
		pending:   make(map[string]struct{}),
		failures:  make(map[string]*failureMemory),
		blacklist: make(map[string]struct{}),
		now:       time.Now,
	}
}

// EnsureResolved returns a fresh StreamInfo for id, resolving at most once
// per id concurrently. A failed foreground resolution gets one internal
// retry after a short delay.
func (c *Cache) EnsureResolved(ctx context.Context, id string) (*resolver.StreamInfo, error) {
	if c.IsBlacklisted(id) {
		metrics.CacheRequestsTotal.WithLabelValues("blacklisted").Inc()
		return nil, fmt.Errorf("track %s: %w", id, ErrBlacklisted)
	}
	if info, ok := c.GetCached(id); ok {
		metrics.CacheRequestsTotal.WithLabelValues("hit").Inc()
		return info, nil
	}
	metrics.CacheRequestsTotal.WithLabelValues("miss").Inc()
	return c.resolveShared(ctx, id, true)
}

// ReResolve replaces the cached entry after a playback-time failure. The
// currently cached entry's client goes into the failure memory first so the
// next attempt excludes it. Exceeding the retry bound blacklists the id.
func (c *Cache) ReResolve(ctx context.Context, id string) (*resolver.StreamInfo, error) {
	c.mu.Lock()
	if _, black := c.blacklist[id]; black {
		c.mu.Unlock()
		return nil, fmt.Errorf("track %s: %w", id, ErrBlacklisted)
	}
	mem := c.failures[id]
	if mem == nil {
		mem = &failureMemory{clients: make(map[string]struct{})}
		c.failures[id] = mem
	}
	if entry, ok := c.entries[id]; ok && entry.info.ClientUsed != "" {
		mem.clients[entry.info.ClientUsed] = struct{}{}
	}
	delete(c.entries, id)
	mem.retries++
	if mem.retries > c.cfg.MaxRetries {
		c.blacklist[id] = struct{}{}
		metrics.BlacklistedTracks.Set(float64(len(c.blacklist)))
		c.mu.Unlock()
		c.logger.Warn().Str("track_id", id).Int("retries", mem.retries).Msg("retry bound exceeded, blacklisting")
		return nil, fmt.Errorf("track %s: retries exhausted: %w", id, ErrBlacklisted)
	}
	c.mu.Unlock()

	// Forget any flight started before the eviction; it would resurrect
	// the entry we just threw away.
	c.group.Forget(id)
	return c.resolveShared(ctx, id, false)
}

// PrefetchAhead fires background resolutions for the next few ids after
// currentIndex, skipping anything blacklisted, fresh, or already in flight.
// Failures are logged and swallowed: prefetch never disturbs playback.
func (c *Cache) PrefetchAhead(orderedIDs []string, currentIndex int) {
	picked := 0
	for i := currentIndex + 1; i < len(orderedIDs) && picked < c.cfg.PrefetchAhead; i++ {
		id := orderedIDs[i]
		if c.IsBlacklisted(id) {
			continue
		}
		c.mu.Lock()
		_, inFlight := c.pending[id]
		c.mu.Unlock()
		if inFlight {
			continue
		}
		if _, ok := c.GetCached(id); ok {
			continue
		}
		picked++
		go func(id string) {
			if _, err := c.EnsureResolved(context.Background(), id); err != nil {
				metrics.PrefetchTotal.WithLabelValues("failure").Inc()
				c.logger.Debug().Str("track_id", id).Err(err).Msg("prefetch failed")
				return
			}
			metrics.PrefetchTotal.WithLabelValues("success").Inc()
		}(id)
	}
}

// IsBlacklisted reports whether id is permanently excluded.
func (c *Cache) IsBlacklisted(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.blacklist[id]
	return ok
}

// HasCached reports whether a fresh entry exists without resolving.
func (c *Cache) HasCached(id string) bool {
	_, ok := c.GetCached(id)
	return ok
}

// GetCached is a non-resolving peek. It returns only entries that are still
// inside both the cache TTL and the URL's own validity window.
func (c *Cache) GetCached(id string) (*resolver.StreamInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[id]
	if !ok || !c.fresh(entry) {
		return nil, false
	}
	info := entry.info
	return &info, true
}

// EvictStale sweeps entries past their deadline and returns how many were
// dropped.
func (c *Cache) EvictStale() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := 0
	for id, entry := range c.entries {
		if !c.fresh(entry) {
			delete(c.entries, id)
			dropped++
		}
	}
	return dropped
}

// FailedClients returns the playback-time failure memory for id, as an
// exclusion set usable with StreamResolver.
func (c *Cache) FailedClients(id string) map[string]struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	mem := c.failures[id]
	if mem == nil {
		return nil
	}
	out := make(map[string]struct{}, len(mem.clients))
	for client := range mem.clients {
		out[client] = struct{}{}
	}
	return out
}

// fresh is called with c.mu held.
func (c *Cache) fresh(entry cacheEntry) bool {
	now := c.now()
	if now.After(entry.resolvedAt.Add(c.cfg.TTL)) {
		return false
	}
	return !entry.info.Expired(now)
}

func (c *Cache) resolveShared(ctx context.Context, id string, retryOnce bool) (*resolver.StreamInfo, error) {
	v, err, _ := c.group.Do(id, func() (interface{}, error) {
		c.mu.Lock()
		if entry, ok := c.entries[id]; ok && c.fresh(entry) {
			info := entry.info
			c.mu.Unlock()
			return &info, nil
		}
		c.pending[id] = struct{}{}
		c.mu.Unlock()
		defer func() {
			c.mu.Lock()
			delete(c.pending, id)
			c.mu.Unlock()
		}()

		info, err := c.upstream.ResolveStreamURL(ctx, id, c.FailedClients(id))
		if err != nil && retryOnce && ctx.Err() == nil {
			c.logger.Debug().Str("track_id", id).Err(err).Msg("resolution failed, retrying once")
			select {
			case <-time.After(c.cfg.RetryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			info, err = c.upstream.ResolveStreamURL(ctx, id, c.FailedClients(id))
		}
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[id] = cacheEntry{info: *info, resolvedAt: c.now()}
		c.mu.Unlock()
		return info, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*resolver.StreamInfo), nil
}
