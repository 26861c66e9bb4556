package playback

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/famomatic/playflow/internal/localcache"
	"github.com/famomatic/playflow/internal/log"
	"github.com/famomatic/playflow/internal/metrics"
	"github.com/famomatic/playflow/internal/resolver"
)

// ResolutionCache is the slice of the stream cache the orchestrator needs.
type ResolutionCache interface {
	EnsureResolved(ctx context.Context, id string) (*resolver.StreamInfo, error)
	ReResolve(ctx context.Context, id string) (*resolver.StreamInfo, error)
	PrefetchAhead(orderedIDs []string, currentIndex int)
	IsBlacklisted(id string) bool
	GetCached(id string) (*resolver.StreamInfo, bool)
}

// LocalMirror is the slice of the local file cache the orchestrator needs.
// It may be absent (nil) when local mirroring is disabled.
type LocalMirror interface {
	ResolveForPlayback(ctx context.Context, id string, info resolver.StreamInfo, opts localcache.Options) resolver.StreamInfo
	IsLocal(rawURL string) bool
	Evict(id string)
}

// Config tunes the orchestrator.
type Config struct {
	// ErrorCooldown is the per-id debounce window: a second error for the
	// same id inside the window is treated as an echo of the first.
	ErrorCooldown time.Duration
	// DownloadTimeout bounds the forced local-recovery download.
	DownloadTimeout time.Duration
}

// trackState is the per-track lifecycle during orchestration. A non-idle
// state rejects re-entrant work for the same id.
type trackState int

const (
	stateIdle trackState = iota
	stateResolving
	stateSwapping
	stateRecovering
)

type trackStatus struct {
	state            trackState
	transientRetried bool
	localTried       bool
	lastErrorAt      time.Time
}

// Orchestrator reacts to engine events and remote commands, keeping a live
// session playing across placeholder activations and playback errors.
// Construct one per engine and feed it events; it never polls.
type Orchestrator struct {
	engine Engine
	cache  ResolutionCache
	local  LocalMirror
	cfg    Config
	logger zerolog.Logger

	// swapEpoch invalidates in-flight hot-swaps: any operation started
	// before the latest bump is stale and must not touch the queue.
	swapEpoch atomic.Uint64

	mu         sync.Mutex
	tracks     map[string]*trackStatus
	duckPaused bool
}

func NewOrchestrator(engine Engine, cache ResolutionCache, local LocalMirror, cfg Config) *Orchestrator {
	if cfg.ErrorCooldown <= 0 {
		cfg.ErrorCooldown = 4 * time.Second
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 30 * time.Second
	}
	return &Orchestrator{
		engine: engine,
		cache:  cache,
		local:  local,
		cfg:    cfg,
		logger: log.WithComponent("playback"),
		tracks: make(map[string]*trackStatus),
	}
}

// PlayAll resolves the first id synchronously, enqueues the rest as
// placeholders, starts playback, and kicks off prefetch for the upcoming
// entries.
func (o *Orchestrator) PlayAll(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	first, err := o.cache.EnsureResolved(ctx, ids[0])
	if err != nil {
		return err
	}

	items := make([]QueueItem, len(ids))
	items[0] = QueueItem{ID: ids[0], URL: first.URL, Headers: first.Headers}
	for i, id := range ids[1:] {
		items[i+1] = QueueItem{ID: id, URL: PlaceholderURL}
	}
	if err := o.engine.Enqueue(items); err != nil {
		return err
	}
	if err := o.engine.Play(); err != nil {
		return err
	}
	o.cache.PrefetchAhead(ids, 0)
	return nil
}

// OnActiveItemChanged handles the engine advancing to a new queue entry.
// Placeholder entries are resolved just-in-time and hot-swapped in place;
// every activation also advances the prefetch window.
func (o *Orchestrator) OnActiveItemChanged(ctx context.Context, item QueueItem, index int) {
	o.cache.PrefetchAhead(queueIDs(o.engine.Queue()), index)

	if !IsPlaceholder(item.URL) {
		// A clean activation resets the per-incident recovery flags.
		o.mu.Lock()
		if st, ok := o.tracks[item.ID]; ok {
			st.transientRetried = false
		}
		o.mu.Unlock()
		return
	}

	if o.cache.IsBlacklisted(item.ID) {
		o.logger.Info().Str("track_id", item.ID).Msg("active item blacklisted, skipping")
		o.skip()
		return
	}

	o.mu.Lock()
	st := o.status(item.ID)
	if st.state != stateIdle {
		o.mu.Unlock()
		return
	}
	st.state = stateResolving
	o.mu.Unlock()
	defer o.setIdle(item.ID)

	epoch := o.swapEpoch.Add(1)

	info, err := o.cache.EnsureResolved(ctx, item.ID)
	if err != nil {
		o.logger.Warn().Str("track_id", item.ID).Err(err).Msg("placeholder resolution failed, re-resolving once")
		info, err = o.cache.ReResolve(ctx, item.ID)
	}
	if err != nil {
		o.logger.Warn().Str("track_id", item.ID).Err(err).Msg("placeholder unrecoverable, skipping")
		o.skip()
		return
	}

	out := o.mirror(ctx, item.ID, *info, false)
	o.hotSwap(epoch, item.ID, out)
}

// OnPlaybackError classifies and recovers from an engine playback error:
// one same-URL retry for transient network codes, then a forced local
// download, then client re-resolution, then skip.
func (o *Orchestrator) OnPlaybackError(ctx context.Context, id string, code ErrorCode) {
	active, _, ok := o.engine.ActiveItem()
	if !ok || active.ID != id {
		// The user already moved on; this error belongs to a dead item.
		return
	}

	o.mu.Lock()
	st := o.status(id)
	now := time.Now()
	if !st.lastErrorAt.IsZero() && now.Sub(st.lastErrorAt) < o.cfg.ErrorCooldown {
		o.mu.Unlock()
		return
	}
	st.lastErrorAt = now
	if st.state != stateIdle {
		// Resolution, swap, or another recovery already owns this track.
		o.mu.Unlock()
		return
	}
	st.state = stateRecovering
	transientRetried := st.transientRetried
	localTried := st.localTried
	o.mu.Unlock()
	defer o.setIdle(id)

	epoch := o.swapEpoch.Add(1)

	if code.transient() && !transientRetried {
		o.mu.Lock()
		st.transientRetried = true
		o.mu.Unlock()
		metrics.RecoveryTotal.WithLabelValues("transient_retry", "attempted").Inc()
		o.logger.Info().Str("track_id", id).Int("code", int(code)).Msg("transient error, retrying same url")
		o.engine.Play() //nolint:errcheck
		return
	}

	if o.local != nil && !o.local.IsLocal(active.URL) && !localTried {
		o.mu.Lock()
		st.localTried = true
		o.mu.Unlock()
		if cached, ok := o.cache.GetCached(id); ok {
			out := o.local.ResolveForPlayback(ctx, id, *cached, localcache.Options{
				DownloadIfMissing: true,
				Timeout:           o.cfg.DownloadTimeout,
			})
			if o.local.IsLocal(out.URL) {
				metrics.RecoveryTotal.WithLabelValues("local_fallback", "success").Inc()
				o.logger.Info().Str("track_id", id).Msg("recovered via local mirror")
				o.hotSwap(epoch, id, out)
				return
			}
			metrics.RecoveryTotal.WithLabelValues("local_fallback", "failure").Inc()
		}
	}

	if o.local != nil && o.local.IsLocal(active.URL) {
		// The failing URL was our own mirror; it is known-bad now.
		o.local.Evict(id)
	}

	info, err := o.cache.ReResolve(ctx, id)
	if err != nil {
		metrics.RecoveryTotal.WithLabelValues("skip", "exhausted").Inc()
		o.logger.Warn().Str("track_id", id).Err(err).Msg("recovery exhausted, skipping")
		o.skip()
		return
	}
	metrics.RecoveryTotal.WithLabelValues("re_resolve", "success").Inc()
	o.hotSwap(epoch, id, o.mirror(ctx, id, *info, false))
}

// OnRemoteCommand passes a transport command straight through to the engine.
func (o *Orchestrator) OnRemoteCommand(cmd Command) error {
	switch cmd {
	case CmdPlay:
		return o.engine.Play()
	case CmdPause:
		return o.engine.Pause()
	case CmdNext:
		return o.engine.Next()
	case CmdPrevious:
		return o.engine.Previous()
	case CmdStop:
		return o.engine.Stop()
	}
	return nil
}

// OnRemoteSeek passes a seek position straight through to the engine.
func (o *Orchestrator) OnRemoteSeek(positionMs int64) error {
	return o.engine.SeekTo(positionMs)
}

// OnDuck pauses for audio-focus loss. A transient duck resumes playback
// when it ends; a permanent one stays paused.
func (o *Orchestrator) OnDuck(start, permanent bool) {
	if start {
		o.mu.Lock()
		o.duckPaused = !permanent
		o.mu.Unlock()
		o.engine.Pause() //nolint:errcheck
		return
	}
	o.mu.Lock()
	resume := o.duckPaused
	o.duckPaused = false
	o.mu.Unlock()
	if resume {
		o.engine.Play() //nolint:errcheck
	}
}

// hotSwap replaces the active entry's URL in place: remove, insert at the
// same index, re-seek, resume. It re-validates the active id and the swap
// epoch first; a stale swap is silently dropped.
func (o *Orchestrator) hotSwap(epoch uint64, id string, info resolver.StreamInfo) {
	if o.swapEpoch.Load() != epoch {
		metrics.HotSwapsTotal.WithLabelValues("stale").Inc()
		o.logger.Debug().Str("track_id", id).Msg("hot-swap superseded, dropping")
		return
	}
	active, index, ok := o.engine.ActiveItem()
	if !ok || active.ID != id {
		metrics.HotSwapsTotal.WithLabelValues("stale").Inc()
		o.logger.Debug().Str("track_id", id).Msg("active item changed mid-swap, dropping")
		return
	}

	o.mu.Lock()
	o.status(id).state = stateSwapping
	o.mu.Unlock()

	item := QueueItem{ID: id, URL: info.URL, Title: active.Title, Headers: info.Headers}
	if err := o.engine.RemoveAt(index); err != nil {
		o.logger.Warn().Str("track_id", id).Err(err).Msg("hot-swap remove failed")
		return
	}
	if err := o.engine.InsertAt(index, item); err != nil {
		o.logger.Warn().Str("track_id", id).Err(err).Msg("hot-swap insert failed")
		return
	}
	if err := o.engine.SkipTo(index); err != nil {
		o.logger.Warn().Str("track_id", id).Err(err).Msg("hot-swap seek failed")
		return
	}
	o.engine.Play() //nolint:errcheck
	metrics.HotSwapsTotal.WithLabelValues("applied").Inc()
	o.logger.Info().Str("track_id", id).Int("index", index).Str("client", info.ClientUsed).Msg("hot-swapped active item")
}

// mirror routes a stream through the local cache when one is configured.
func (o *Orchestrator) mirror(ctx context.Context, id string, info resolver.StreamInfo, force bool) resolver.StreamInfo {
	if o.local == nil {
		return info
	}
	return o.local.ResolveForPlayback(ctx, id, info, localcache.Options{
		DownloadIfMissing: force,
		Timeout:           o.cfg.DownloadTimeout,
	})
}

func (o *Orchestrator) skip() {
	if err := o.engine.Next(); err != nil {
		o.logger.Warn().Err(err).Msg("skip failed")
	}
}

// status is called with o.mu held.
func (o *Orchestrator) status(id string) *trackStatus {
	st, ok := o.tracks[id]
	if !ok {
		st = &trackStatus{}
		o.tracks[id] = st
	}
	return st
}

func (o *Orchestrator) setIdle(id string) {
	o.mu.Lock()
	o.status(id).state = stateIdle
	o.mu.Unlock()
}

func queueIDs(items []QueueItem) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids
}
