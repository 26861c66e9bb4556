// Package config loads service configuration from the environment.
// Every knob has a working default so a bare process still runs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full service configuration.
type Config struct {
	// ListenAddr is the HTTP API bind address.
	ListenAddr string
	// LogLevel is the zerolog level name (debug, info, warn, error).
	LogLevel string

	// ProfileOrder is the client profile fallback order, by alias.
	ProfileOrder []string
	// ConfirmReachability requires pre-flight success before a direct URL
	// is accepted.
	ConfirmReachability bool

	// CacheTTL bounds resolution cache entries.
	CacheTTL time.Duration
	// MaxRetries bounds playback-time re-resolutions before blacklisting.
	MaxRetries int
	// PrefetchAhead is the look-ahead prefetch window size.
	PrefetchAhead int

	// LocalCacheDir enables the local stream mirror when non-empty.
	LocalCacheDir string
	// LocalCacheTTL bounds how long mirrored files are trusted.
	LocalCacheTTL time.Duration
	// DownloadTimeout bounds one mirror download.
	DownloadTimeout time.Duration

	// RequestsPerSecond throttles upstream metadata requests.
	RequestsPerSecond float64
}

// FromEnv reads PLAYFLOW_* variables, falling back to defaults.
func FromEnv() (Config, error) {
	cfg := Config{
		ListenAddr:          envString("PLAYFLOW_LISTEN_ADDR", ":8484"),
		LogLevel:            envString("PLAYFLOW_LOG_LEVEL", "info"),
		ProfileOrder:        splitList(envString("PLAYFLOW_PROFILE_ORDER", "ios,android,web,mweb,tv")),
		ConfirmReachability: envBool("PLAYFLOW_CONFIRM_REACHABILITY", true),
		CacheTTL:            envDuration("PLAYFLOW_CACHE_TTL", 30*time.Minute),
		MaxRetries:          envInt("PLAYFLOW_MAX_RETRIES", 3),
		PrefetchAhead:       envInt("PLAYFLOW_PREFETCH_AHEAD", 2),
		LocalCacheDir:       envString("PLAYFLOW_LOCAL_CACHE_DIR", ""),
		LocalCacheTTL:       envDuration("PLAYFLOW_LOCAL_CACHE_TTL", 6*time.Hour),
		DownloadTimeout:     envDuration("PLAYFLOW_DOWNLOAD_TIMEOUT", 30*time.Second),
		RequestsPerSecond:   envFloat("PLAYFLOW_REQUESTS_PER_SECOND", 2),
	}
	if len(cfg.ProfileOrder) == 0 {
		return Config{}, fmt.Errorf("config: PLAYFLOW_PROFILE_ORDER must name at least one profile")
	}
	if cfg.MaxRetries < 1 {
		return Config{}, fmt.Errorf("config: PLAYFLOW_MAX_RETRIES must be >= 1")
	}
	return cfg, nil
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
