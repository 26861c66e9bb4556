package playback

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/famomatic/playflow/internal/localcache"
	"github.com/famomatic/playflow/internal/resolver"
)

type fakeEngine struct {
	mu        sync.Mutex
	queue     []QueueItem
	active    int
	playCalls int
	nextCalls int
	pauseCall int
	removes   int
	inserts   int
}

func (e *fakeEngine) Enqueue(items []QueueItem) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue = append(e.queue, items...)
	return nil
}

func (e *fakeEngine) RemoveAt(index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removes++
	e.queue = append(e.queue[:index], e.queue[index+1:]...)
	return nil
}

func (e *fakeEngine) InsertAt(index int, item QueueItem) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inserts++
	e.queue = append(e.queue[:index], append([]QueueItem{item}, e.queue[index:]...)...)
	return nil
}

func (e *fakeEngine) SkipTo(index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = index
	return nil
}

func (e *fakeEngine) Next() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextCalls++
	if e.active < len(e.queue)-1 {
		e.active++
	}
	return nil
}

func (e *fakeEngine) Previous() error { return nil }

func (e *fakeEngine) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playCalls++
	return nil
}

func (e *fakeEngine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pauseCall++
	return nil
}

func (e *fakeEngine) Stop() error { return nil }

func (e *fakeEngine) SeekTo(int64) error { return nil }

func (e *fakeEngine) ActiveItem() (QueueItem, int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active < 0 || e.active >= len(e.queue) {
		return QueueItem{}, 0, false
	}
	return e.queue[e.active], e.active, true
}

func (e *fakeEngine) Queue() []QueueItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]QueueItem(nil), e.queue...)
}

func (e *fakeEngine) setActive(index int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = index
}

type fakeCache struct {
	mu          sync.Mutex
	ensureFn    func(id string) (*resolver.StreamInfo, error)
	reFn        func(id string) (*resolver.StreamInfo, error)
	cached      map[string]*resolver.StreamInfo
	blacklisted map[string]bool
	ensureCalls []string
	reCalls     []string
	prefetched  int
}

func (c *fakeCache) EnsureResolved(_ context.Context, id string) (*resolver.StreamInfo, error) {
	c.mu.Lock()
	c.ensureCalls = append(c.ensureCalls, id)
	c.mu.Unlock()
	return c.ensureFn(id)
}

func (c *fakeCache) ReResolve(_ context.Context, id string) (*resolver.StreamInfo, error) {
	c.mu.Lock()
	c.reCalls = append(c.reCalls, id)
	c.mu.Unlock()
	if c.reFn == nil {
		return nil, errors.New("no re-resolution configured")
	}
	return c.reFn(id)
}

func (c *fakeCache) PrefetchAhead([]string, int) {
	c.mu.Lock()
	c.prefetched++
	c.mu.Unlock()
}

func (c *fakeCache) IsBlacklisted(id string) bool { return c.blacklisted[id] }

func (c *fakeCache) GetCached(id string) (*resolver.StreamInfo, bool) {
	info, ok := c.cached[id]
	return info, ok
}

func streamFor(id string) *resolver.StreamInfo {
	return &resolver.StreamInfo{
		URL:        "https://cdn.example.test/" + id,
		ClientUsed: "IOS",
		ExpiresAt:  time.Now().Add(time.Hour),
	}
}

func TestPlayAll_FirstResolvedRestPlaceholders(t *testing.T) {
	engine := &fakeEngine{}
	cache := &fakeCache{ensureFn: func(id string) (*resolver.StreamInfo, error) {
		return streamFor(id), nil
	}}
	o := NewOrchestrator(engine, cache, nil, Config{})

	if err := o.PlayAll(context.Background(), []string{"A", "B", "C"}); err != nil {
		t.Fatalf("PlayAll() error = %v", err)
	}
	if len(engine.queue) != 3 {
		t.Fatalf("queue length = %d, want 3", len(engine.queue))
	}
	if IsPlaceholder(engine.queue[0].URL) {
		t.Fatal("first item should be resolved")
	}
	if !IsPlaceholder(engine.queue[1].URL) || !IsPlaceholder(engine.queue[2].URL) {
		t.Fatal("remaining items should be placeholders")
	}
	if engine.playCalls != 1 {
		t.Fatalf("playCalls = %d, want 1", engine.playCalls)
	}
	if cache.prefetched != 1 {
		t.Fatalf("prefetched = %d, want 1", cache.prefetched)
	}
	if len(cache.ensureCalls) != 1 || cache.ensureCalls[0] != "A" {
		t.Fatalf("ensureCalls = %v, want [A]", cache.ensureCalls)
	}
}

func TestOnActiveItemChanged_HotSwapsPlaceholderInPlace(t *testing.T) {
	engine := &fakeEngine{queue: []QueueItem{
		{ID: "A", URL: "https://cdn.example.test/A"},
		{ID: "B", URL: PlaceholderURL},
	}}
	engine.setActive(1)
	cache := &fakeCache{ensureFn: func(id string) (*resolver.StreamInfo, error) {
		return streamFor(id), nil
	}}
	o := NewOrchestrator(engine, cache, nil, Config{})

	item, index, _ := engine.ActiveItem()
	o.OnActiveItemChanged(context.Background(), item, index)

	if len(engine.queue) != 2 {
		t.Fatalf("queue length = %d, want 2 (swap must preserve length)", len(engine.queue))
	}
	if engine.active != 1 {
		t.Fatalf("active index = %d, want 1", engine.active)
	}
	if got := engine.queue[1].URL; got != "https://cdn.example.test/B" {
		t.Fatalf("swapped URL = %q", got)
	}
	if engine.queue[1].ID != "B" {
		t.Fatalf("swapped ID = %q, want B", engine.queue[1].ID)
	}
}

func TestOnActiveItemChanged_SwapDroppedWhenActiveMovedOn(t *testing.T) {
	engine := &fakeEngine{queue: []QueueItem{
		{ID: "A", URL: PlaceholderURL},
		{ID: "B", URL: "https://cdn.example.test/B"},
	}}
	cache := &fakeCache{}
	cache.ensureFn = func(id string) (*resolver.StreamInfo, error) {
		// The user skips away while resolution is in flight.
		engine.setActive(1)
		return streamFor(id), nil
	}
	o := NewOrchestrator(engine, cache, nil, Config{})

	item, index, _ := engine.ActiveItem()
	o.OnActiveItemChanged(context.Background(), item, index)

	if engine.removes != 0 || engine.inserts != 0 {
		t.Fatal("stale swap must not mutate the queue")
	}
	if engine.queue[0].URL != PlaceholderURL {
		t.Fatal("stale swap must leave the placeholder untouched")
	}
}

func TestOnActiveItemChanged_BlacklistedSkipsWithoutResolving(t *testing.T) {
	engine := &fakeEngine{queue: []QueueItem{
		{ID: "A", URL: PlaceholderURL},
		{ID: "B", URL: "https://cdn.example.test/B"},
	}}
	cache := &fakeCache{blacklisted: map[string]bool{"A": true}}
	o := NewOrchestrator(engine, cache, nil, Config{})

	item, index, _ := engine.ActiveItem()
	o.OnActiveItemChanged(context.Background(), item, index)

	if engine.nextCalls != 1 {
		t.Fatalf("nextCalls = %d, want 1", engine.nextCalls)
	}
	if len(cache.ensureCalls) != 0 {
		t.Fatalf("ensureCalls = %v, want none for blacklisted id", cache.ensureCalls)
	}
}

func TestOnActiveItemChanged_FailedResolutionFallsBackToReResolveThenSkips(t *testing.T) {
	engine := &fakeEngine{queue: []QueueItem{
		{ID: "A", URL: PlaceholderURL},
		{ID: "B", URL: "https://cdn.example.test/B"},
	}}
	cache := &fakeCache{
		ensureFn: func(string) (*resolver.StreamInfo, error) {
			return nil, errors.New("all clients failed")
		},
		reFn: func(string) (*resolver.StreamInfo, error) {
			return nil, errors.New("all clients failed")
		},
	}
	o := NewOrchestrator(engine, cache, nil, Config{})

	item, index, _ := engine.ActiveItem()
	o.OnActiveItemChanged(context.Background(), item, index)

	if len(cache.reCalls) != 1 {
		t.Fatalf("reCalls = %v, want exactly one fallback re-resolution", cache.reCalls)
	}
	if engine.nextCalls != 1 {
		t.Fatalf("nextCalls = %d, want 1 (unrecoverable placeholder skips)", engine.nextCalls)
	}
	if engine.removes != 0 || engine.inserts != 0 {
		t.Fatal("failed resolution must not mutate the queue")
	}
	if engine.queue[0].URL != PlaceholderURL {
		t.Fatalf("queue[0].URL = %q, want untouched placeholder", engine.queue[0].URL)
	}
}

func TestOnPlaybackError_IgnoredWhileResolutionInFlight(t *testing.T) {
	engine := &fakeEngine{queue: []QueueItem{{ID: "A", URL: PlaceholderURL}}}
	started := make(chan struct{})
	release := make(chan struct{})
	cache := &fakeCache{ensureFn: func(id string) (*resolver.StreamInfo, error) {
		close(started)
		<-release
		return streamFor(id), nil
	}}
	o := NewOrchestrator(engine, cache, nil, Config{ErrorCooldown: time.Millisecond})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		item, index, _ := engine.ActiveItem()
		o.OnActiveItemChanged(context.Background(), item, index)
	}()
	<-started

	// An error for the same id while its resolution is in flight must not
	// start a competing recovery.
	o.OnPlaybackError(context.Background(), "A", ErrCodeSourceHTTP)
	if len(cache.reCalls) != 0 || engine.nextCalls != 0 {
		t.Fatal("error during in-flight resolution must be ignored")
	}

	close(release)
	wg.Wait()

	if got := engine.queue[0].URL; got != "https://cdn.example.test/A" {
		t.Fatalf("queue[0].URL = %q, want resolved URL after swap", got)
	}
}

func TestOnPlaybackError_TransientRetriesSameURLOnce(t *testing.T) {
	engine := &fakeEngine{queue: []QueueItem{{ID: "A", URL: "https://cdn.example.test/A"}}}
	cache := &fakeCache{
		ensureFn: func(id string) (*resolver.StreamInfo, error) { return streamFor(id), nil },
		reFn:     func(id string) (*resolver.StreamInfo, error) { return streamFor(id), nil },
	}
	o := NewOrchestrator(engine, cache, nil, Config{ErrorCooldown: time.Millisecond})

	o.OnPlaybackError(context.Background(), "A", ErrCodeNetworkTimeout)
	if engine.playCalls != 1 {
		t.Fatalf("playCalls = %d, want 1 (same-URL retry)", engine.playCalls)
	}
	if len(cache.reCalls) != 0 {
		t.Fatal("transient retry must not re-resolve")
	}

	// The retry budget is spent; the next transient error escalates.
	time.Sleep(5 * time.Millisecond)
	o.OnPlaybackError(context.Background(), "A", ErrCodeNetworkTimeout)
	if len(cache.reCalls) != 1 {
		t.Fatalf("reCalls = %v, want one escalated re-resolution", cache.reCalls)
	}
}

func TestOnPlaybackError_DebouncedWithinCooldown(t *testing.T) {
	engine := &fakeEngine{queue: []QueueItem{{ID: "A", URL: "https://cdn.example.test/A"}}}
	cache := &fakeCache{reFn: func(id string) (*resolver.StreamInfo, error) { return streamFor(id), nil }}
	o := NewOrchestrator(engine, cache, nil, Config{ErrorCooldown: time.Minute})

	o.OnPlaybackError(context.Background(), "A", ErrCodeSourceHTTP)
	o.OnPlaybackError(context.Background(), "A", ErrCodeSourceHTTP)

	if len(cache.reCalls) != 1 {
		t.Fatalf("reCalls = %d, want 1 (second error inside cooldown is an echo)", len(cache.reCalls))
	}
}

func TestOnPlaybackError_StaleEventIgnored(t *testing.T) {
	engine := &fakeEngine{queue: []QueueItem{
		{ID: "A", URL: "https://cdn.example.test/A"},
		{ID: "B", URL: "https://cdn.example.test/B"},
	}}
	engine.setActive(1)
	cache := &fakeCache{reFn: func(id string) (*resolver.StreamInfo, error) { return streamFor(id), nil }}
	o := NewOrchestrator(engine, cache, nil, Config{})

	o.OnPlaybackError(context.Background(), "A", ErrCodeSourceHTTP)

	if len(cache.reCalls) != 0 || engine.playCalls != 0 {
		t.Fatal("error for a non-active id must be ignored")
	}
}

func TestOnPlaybackError_RecoversViaLocalMirror(t *testing.T) {
	engine := &fakeEngine{queue: []QueueItem{{ID: "A", URL: "https://cdn.example.test/A"}}}
	cached := streamFor("A")
	cache := &fakeCache{cached: map[string]*resolver.StreamInfo{"A": cached}}
	mirror := &fakeMirror{localURL: "file:///cache/A.audio"}
	o := NewOrchestrator(engine, cache, mirror, Config{ErrorCooldown: time.Millisecond})

	o.OnPlaybackError(context.Background(), "A", ErrCodeSourceHTTP)

	if !mirror.forced {
		t.Fatal("local recovery must force a download")
	}
	if len(cache.reCalls) != 0 {
		t.Fatal("successful local recovery must not re-resolve")
	}
	if got := engine.queue[0].URL; !strings.HasPrefix(got, "file://") {
		t.Fatalf("active URL = %q, want local file", got)
	}
}

func TestOnPlaybackError_EvictsBadLocalFileThenReResolves(t *testing.T) {
	engine := &fakeEngine{queue: []QueueItem{{ID: "A", URL: "file:///cache/A.audio"}}}
	cache := &fakeCache{reFn: func(id string) (*resolver.StreamInfo, error) { return streamFor(id), nil }}
	mirror := &fakeMirror{localURL: "file:///cache/A.audio"}
	o := NewOrchestrator(engine, cache, mirror, Config{ErrorCooldown: time.Millisecond})

	o.OnPlaybackError(context.Background(), "A", ErrCodeDecode)

	if len(mirror.evicted) != 1 || mirror.evicted[0] != "A" {
		t.Fatalf("evicted = %v, want [A]", mirror.evicted)
	}
	if len(cache.reCalls) != 1 {
		t.Fatalf("reCalls = %d, want 1", len(cache.reCalls))
	}
	if got := engine.queue[0].URL; got != "https://cdn.example.test/A" {
		t.Fatalf("recovered URL = %q", got)
	}
}

func TestOnPlaybackError_ExhaustionSkips(t *testing.T) {
	engine := &fakeEngine{queue: []QueueItem{
		{ID: "A", URL: "https://cdn.example.test/A"},
		{ID: "B", URL: "https://cdn.example.test/B"},
	}}
	cache := &fakeCache{reFn: func(string) (*resolver.StreamInfo, error) {
		return nil, errors.New("retries exhausted")
	}}
	o := NewOrchestrator(engine, cache, nil, Config{ErrorCooldown: time.Millisecond})

	o.OnPlaybackError(context.Background(), "A", ErrCodeSourceHTTP)

	if engine.nextCalls != 1 {
		t.Fatalf("nextCalls = %d, want 1 (exhaustion skips)", engine.nextCalls)
	}
}

func TestOnDuck_TransientPausesAndResumes(t *testing.T) {
	engine := &fakeEngine{queue: []QueueItem{{ID: "A", URL: "https://cdn.example.test/A"}}}
	o := NewOrchestrator(engine, &fakeCache{}, nil, Config{})

	o.OnDuck(true, false)
	if engine.pauseCall != 1 {
		t.Fatalf("pauseCall = %d, want 1", engine.pauseCall)
	}
	o.OnDuck(false, false)
	if engine.playCalls != 1 {
		t.Fatalf("playCalls = %d, want resume after transient duck", engine.playCalls)
	}
}

func TestOnDuck_PermanentStaysPaused(t *testing.T) {
	engine := &fakeEngine{queue: []QueueItem{{ID: "A", URL: "https://cdn.example.test/A"}}}
	o := NewOrchestrator(engine, &fakeCache{}, nil, Config{})

	o.OnDuck(true, true)
	o.OnDuck(false, true)
	if engine.playCalls != 0 {
		t.Fatal("permanent duck must not auto-resume")
	}
}

type fakeMirror struct {
	localURL string
	forced   bool
	evicted  []string
}

func (m *fakeMirror) ResolveForPlayback(_ context.Context, _ string, info resolver.StreamInfo, opts localcache.Options) resolver.StreamInfo {
	if opts.DownloadIfMissing {
		m.forced = true
		return info.WithURL(m.localURL)
	}
	return info
}

func (m *fakeMirror) IsLocal(rawURL string) bool { return strings.HasPrefix(rawURL, "file://") }

func (m *fakeMirror) Evict(id string) { m.evicted = append(m.evicted, id) }
