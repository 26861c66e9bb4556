// Package metrics provides Prometheus metrics for the resolution and
// playback subsystems.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResolutionAttemptsTotal counts per-profile resolution attempts by outcome
	// (success, empty, error).
	ResolutionAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playflow_resolution_attempts_total",
		Help: "Total number of per-profile resolution attempts, by client and outcome.",
	}, []string{"client", "outcome"})

	// ResolutionDurationSeconds observes end-to-end resolution latency by outcome.
	ResolutionDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "playflow_resolution_duration_seconds",
		Help:    "End-to-end stream resolution latency, by outcome.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	// CacheRequestsTotal counts resolution cache lookups by result
	// (hit, miss, blacklisted).
	CacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playflow_cache_requests_total",
		Help: "Total number of resolution cache lookups, by result.",
	}, []string{"result"})

	// BlacklistedTracks tracks how many ids are permanently excluded.
	BlacklistedTracks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playflow_blacklisted_tracks",
		Help: "Current number of blacklisted track ids.",
	})

	// PrefetchTotal counts background prefetch resolutions by outcome.
	PrefetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playflow_prefetch_total",
		Help: "Total number of background prefetch resolutions, by outcome.",
	}, []string{"outcome"})

	// LocalCacheDownloadsTotal counts local mirror downloads by outcome
	// (success, failure, timeout).
	LocalCacheDownloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playflow_localcache_downloads_total",
		Help: "Total number of local stream mirror downloads, by outcome.",
	}, []string{"outcome"})

	// RecoveryTotal counts playback error recoveries by stage and outcome.
	// Stages: transient_retry, local_fallback, re_resolve, skip.
	RecoveryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playflow_recovery_total",
		Help: "Total number of playback error recovery actions, by stage and outcome.",
	}, []string{"stage", "outcome"})

	// HotSwapsTotal counts hot-swap attempts by outcome (applied, stale).
	HotSwapsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playflow_hotswaps_total",
		Help: "Total number of active-item hot-swap attempts, by outcome.",
	}, []string{"outcome"})
)
