package playerjs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// Resolver locates and fetches the provider's player script.
type Resolver interface {
	GetPlayerJS(ctx context.Context, playerURL string) (string, error)
	GetPlayerURL(ctx context.Context, trackID string) (string, error)
}

// ResolverConfig contains externally tunable settings for player JS fetches.
type ResolverConfig struct {
	BaseURL         string
	UserAgent       string
	Headers         http.Header
	PreferredLocale string
}

type defaultResolver struct {
	client *http.Client
	cache  Cache
	config ResolverConfig
}

const defaultScriptUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
const defaultScriptLocale = "en_US"

var (
	playerURLPattern  = regexp.MustCompile(`(/s/player/[A-Za-z0-9_-]+/[A-Za-z0-9._/-]*/base\.js)`)
	playerPathPattern = regexp.MustCompile(`^/s/player/([A-Za-z0-9_-]+)/(.+)$`)
	localePathPattern = regexp.MustCompile(`(?i)(player(?:_[a-z0-9]+)?\.vflset)/[a-z]{2,3}_[a-z]{2,3}/base\.js$`)
	nonAlnumPattern   = regexp.MustCompile(`[^a-zA-Z0-9]+`)
)

func NewResolver(client *http.Client, cache Cache, cfg ...ResolverConfig) Resolver {
	resolverConfig := ResolverConfig{}
	if len(cfg) > 0 {
		resolverConfig = cfg[0]
	}
	return &defaultResolver{
		client: client,
		cache:  cache,
		config: resolverConfig,
	}
}

// GetPlayerJS fetches the script at playerURL, first trying the canonical
// locale path (script bodies are locale-independent, so one cached copy
// serves all locales of the same player build).
func (r *defaultResolver) GetPlayerJS(ctx context.Context, playerURL string) (string, error) {
	normalizedPath := r.normalizePlayerPath(playerURL)
	cacheKey := r.scriptCacheKey(normalizedPath)
	if body, ok := r.cache.Get(cacheKey); ok {
		return body, nil
	}

	candidates := []string{normalizedPath}
	if playerURL != normalizedPath {
		candidates = append(candidates, playerURL)
	}

	var lastErr error
	for _, candidate := range candidates {
		body, err := r.fetchScript(ctx, candidate)
		if err != nil {
			lastErr = err
			continue
		}
		r.cache.Set(cacheKey, body)
		return body, nil
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", fmt.Errorf("failed to fetch player JS")
}

// GetPlayerURL scrapes the watch page for trackID and extracts the player
// script path.
func (r *defaultResolver) GetPlayerURL(ctx context.Context, trackID string) (string, error) {
	u, err := url.Parse(strings.TrimRight(r.baseURL(), "/") + "/watch")
	if err != nil {
		return "", fmt.Errorf("failed to build watch url: %w", err)
	}
	q := u.Query()
	q.Set("v", trackID)
	u.RawQuery = q.Encode()

	body, err := r.get(ctx, u.String())
	if err != nil {
		return "", err
	}

	m := playerURLPattern.FindSubmatch(body)
	if len(m) < 2 {
		return "", fmt.Errorf("player url not found")
	}
	return string(m[1]), nil
}

func (r *defaultResolver) fetchScript(ctx context.Context, playerURL string) (string, error) {
	urlToFetch := playerURL
	if !strings.HasPrefix(urlToFetch, "http://") && !strings.HasPrefix(urlToFetch, "https://") {
		urlToFetch = strings.TrimRight(r.baseURL(), "/") + playerURL
	}
	body, err := r.get(ctx, urlToFetch)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (r *defaultResolver) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	ua := r.config.UserAgent
	if ua == "" {
		ua = defaultScriptUserAgent
	}
	req.Header.Set("User-Agent", ua)
	for k, values := range r.config.Headers {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status code: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (r *defaultResolver) baseURL() string {
	if r.config.BaseURL != "" {
		return r.config.BaseURL
	}
	return "https://www.youtube.com"
}

func (r *defaultResolver) normalizePlayerPath(playerURL string) string {
	u, err := url.Parse(playerURL)
	if err == nil && u.Path != "" {
		playerURL = u.Path
	}
	locale := r.config.PreferredLocale
	if locale == "" {
		locale = defaultScriptLocale
	}
	if localePathPattern.MatchString(playerURL) {
		return localePathPattern.ReplaceAllString(playerURL, "${1}/"+locale+"/base.js")
	}
	return playerURL
}

func (r *defaultResolver) scriptCacheKey(playerPath string) string {
	m := playerPathPattern.FindStringSubmatch(playerPath)
	if len(m) < 3 {
		return playerPath
	}
	playerID := m[1]
	variant := nonAlnumPattern.ReplaceAllString(m[2], "_")
	return playerID + ":" + variant
}
