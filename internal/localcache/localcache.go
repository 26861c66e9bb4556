// Package localcache mirrors resolved remote audio streams into a local
// file cache so playback can fall back to disk when the remote URL turns
// flaky.
package localcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/famomatic/playflow/internal/log"
	"github.com/famomatic/playflow/internal/metrics"
	"github.com/famomatic/playflow/internal/resolver"
)

// Options controls one resolveForPlayback call.
type Options struct {
	// DownloadIfMissing permits a download when no usable local copy
	// exists. When false, a miss returns the remote stream unchanged.
	DownloadIfMissing bool
	// Timeout bounds the download; zero means no bound beyond ctx.
	Timeout time.Duration
}

// Config tunes the cache.
type Config struct {
	// Dir is the directory holding mirrored files.
	Dir string
	// TTL bounds how long a mirrored file is trusted. Zero means entries
	// only expire with their source resolution.
	TTL time.Duration
	// HTTPClient performs downloads. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

type entry struct {
	localPath string
	sourceURL string
	expiresAt time.Time
}

// Cache is the local stream mirror. All failures degrade to "serve the
// remote URL"; ResolveForPlayback never returns an error.
type Cache struct {
	cfg    Config
	logger zerolog.Logger
	group  singleflight.Group

	mu      sync.Mutex
	entries map[string]entry

	now func() time.Time
}

func New(cfg Config) (*Cache, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("localcache: dir is required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 6 * time.Hour
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("localcache: create dir: %w", err)
	}
	return &Cache{
		cfg:     cfg,
		logger:  log.WithComponent("localcache"),
		entries: make(map[string]entry),
		now:     time.Now,
	}, nil
}

// ResolveForPlayback returns a StreamInfo pointing at a local mirror of the
// stream when one is available (or can be downloaded), and the original
// remote info otherwise.
func (c *Cache) ResolveForPlayback(ctx context.Context, id string, info resolver.StreamInfo, opts Options) resolver.StreamInfo {
	if !eligible(info) {
		return info
	}

	if local, ok := c.lookup(id, info.URL); ok {
		return info.WithURL(fileURI(local))
	}
	if !opts.DownloadIfMissing {
		return info
	}

	localPath, err := c.download(ctx, id, info, opts.Timeout)
	if err != nil {
		outcome := "failure"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		metrics.LocalCacheDownloadsTotal.WithLabelValues(outcome).Inc()
		c.logger.Debug().Str("track_id", id).Err(err).Msg("download failed, serving remote")
		return info
	}
	metrics.LocalCacheDownloadsTotal.WithLabelValues("success").Inc()
	return info.WithURL(fileURI(localPath))
}

// IsLocal reports whether rawURL points into this cache's directory.
func (c *Cache) IsLocal(rawURL string) bool {
	path := strings.TrimPrefix(rawURL, "file://")
	if path == rawURL && strings.Contains(rawURL, "://") {
		return false
	}
	rel, err := filepath.Rel(c.cfg.Dir, path)
	return err == nil && !strings.HasPrefix(rel, "..")
}

// Evict deletes id's backing file and forgets the entry. Idempotent; used
// whenever a local file is suspected bad.
func (c *Cache) Evict(id string) {
	c.mu.Lock()
	e, ok := c.entries[id]
	delete(c.entries, id)
	c.mu.Unlock()

	path := c.pathFor(id)
	if ok {
		path = e.localPath
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		c.logger.Warn().Str("track_id", id).Err(err).Msg("evict: remove failed")
	}
}

// lookup returns a usable local path for id, validating the entry against
// the current source URL, its expiry, and the file's continued existence.
func (c *Cache) lookup(id, sourceURL string) (string, bool) {
	c.mu.Lock()
	e, ok := c.entries[id]
	c.mu.Unlock()
	if !ok {
		return "", false
	}
	if e.sourceURL != sourceURL || c.now().After(e.expiresAt) {
		c.Evict(id)
		return "", false
	}
	if _, err := os.Stat(e.localPath); err != nil {
		c.mu.Lock()
		delete(c.entries, id)
		c.mu.Unlock()
		return "", false
	}
	return e.localPath, true
}

func (c *Cache) download(ctx context.Context, id string, info resolver.StreamInfo, timeout time.Duration) (string, error) {
	v, err, _ := c.group.Do(id, func() (interface{}, error) {
		// A concurrent caller may have completed the download while we
		// waited for the flight slot.
		if local, ok := c.lookup(id, info.URL); ok {
			return local, nil
		}

		dctx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			dctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		path := c.pathFor(id)
		if err := c.fetchToFile(dctx, info, path); err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[id] = entry{
			localPath: path,
			sourceURL: info.URL,
			expiresAt: c.now().Add(c.cfg.TTL),
		}
		c.mu.Unlock()
		c.logger.Info().Str("track_id", id).Str("path", path).Msg("stream mirrored")
		return path, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Cache) fetchToFile(ctx context.Context, info resolver.StreamInfo, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, info.URL, nil)
	if err != nil {
		return err
	}
	for k, v := range info.Headers {
		req.Header.Set(k, v)
	}
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download status=%d", resp.StatusCode)
	}

	// Atomic rename so a partial download never looks like a valid entry.
	f, err := renameio.TempFile("", path)
	if err != nil {
		return err
	}
	defer f.Cleanup() //nolint:errcheck
	if _, err := io.Copy(f, resp.Body); err != nil {
		return err
	}
	return f.CloseAtomicallyReplace()
}

func (c *Cache) pathFor(id string) string {
	return filepath.Join(c.cfg.Dir, safeKey(id)+".audio")
}

// eligible streams are remote plain-http(s), non-segmented resources.
func eligible(info resolver.StreamInfo) bool {
	if info.IsSegmented {
		return false
	}
	u, err := url.Parse(info.URL)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

func fileURI(path string) string {
	return "file://" + path
}

// safeKey transforms a track id into a filesystem-safe file name.
func safeKey(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('%')
			fmt.Fprintf(&b, "%02X", r)
		}
	}
	return b.String()
}
