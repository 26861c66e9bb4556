package client

import (
	"net/http"
	"time"
)

// Config configures a Client. The zero value is usable: default profile
// order, strict pre-flight, in-memory caching only.
type Config struct {
	// HTTPClient is shared by metadata fetches, manifest fetches,
	// pre-flight probes, and downloads.
	HTTPClient *http.Client

	// ProfileOrder overrides the client profile fallback order, by alias
	// (e.g. "ios", "android"). Unknown aliases are dropped.
	ProfileOrder []string
	// ConfirmReachability requires a successful pre-flight probe before a
	// direct URL is accepted.
	ConfirmReachability bool

	// CacheTTL bounds resolution cache entries.
	CacheTTL time.Duration
	// MaxRetries bounds playback-time re-resolutions before an id is
	// blacklisted.
	MaxRetries int
	// PrefetchAhead is the look-ahead prefetch window size.
	PrefetchAhead int

	// LocalCacheDir enables the local stream mirror when non-empty.
	LocalCacheDir string
	// LocalCacheTTL bounds how long mirrored files are trusted.
	LocalCacheTTL time.Duration
	// DownloadTimeout bounds one mirror download.
	DownloadTimeout time.Duration

	// RequestsPerSecond throttles upstream metadata requests. Zero
	// disables throttling.
	RequestsPerSecond float64

	// MetadataBaseURL overrides the upstream metadata host; used by tests
	// and proxies.
	MetadataBaseURL string
	// ScriptBaseURL overrides the player script host; used by tests.
	ScriptBaseURL string
}
