package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/famomatic/playflow/internal/innertube"
	"github.com/famomatic/playflow/internal/log"
	"github.com/famomatic/playflow/internal/manifest"
	"github.com/famomatic/playflow/internal/playerjs"
)

// MetadataClient fetches streaming metadata through one client profile.
type MetadataClient interface {
	GetStreamingMetadata(ctx context.Context, trackID string, profile innertube.ClientProfile) (*innertube.PlayerResponse, error)
}

// ClientResolverConfig tunes a ClientResolver.
type ClientResolverConfig struct {
	HTTPClient *http.Client
	// ConfirmReachability requires a successful pre-flight probe before a
	// direct URL is accepted. Platforms with unreliable pre-flight set this
	// to false and accept the best candidate as a last resort.
	ConfirmReachability bool
	// ManifestBitrateBps is the estimated bitrate recorded for manifest
	// streams, whose declared bandwidth is approximate.
	ManifestBitrateBps int
	// DefaultTTL bounds validity when the upstream omits an expiry.
	DefaultTTL time.Duration
}

// ClientResolver attempts to produce a StreamInfo for a track id using one
// client profile, trying direct audio then manifest delivery (or the
// reverse, per profile preference).
type ClientResolver struct {
	meta    MetadataClient
	scripts playerjs.Resolver
	cfg     ClientResolverConfig
	logger  zerolog.Logger
}

func NewClientResolver(meta MetadataClient, scripts playerjs.Resolver, cfg ClientResolverConfig) *ClientResolver {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.ManifestBitrateBps <= 0 {
		cfg.ManifestBitrateBps = 144_000
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = time.Hour
	}
	return &ClientResolver{
		meta:    meta,
		scripts: scripts,
		cfg:     cfg,
		logger:  log.WithComponent("resolver"),
	}
}

// Resolve returns the profile's best playable stream, (nil, nil) when the
// profile has nothing playable, and an error only for genuine
// transport/protocol failures.
func (r *ClientResolver) Resolve(ctx context.Context, trackID string, profile innertube.ClientProfile) (*StreamInfo, error) {
	resp, err := r.meta.GetStreamingMetadata(ctx, trackID, profile)
	if err != nil {
		return nil, err
	}
	if !resp.StreamingData.HasStreams() {
		return nil, nil
	}

	base := r.baseInfo(resp, profile)

	if profile.PrefersManifestFirst {
		if info := r.resolveManifest(ctx, resp, base); info != nil {
			return info, nil
		}
		return r.resolveDirect(ctx, trackID, resp, base)
	}

	info, err := r.resolveDirect(ctx, trackID, resp, base)
	if err != nil || info != nil {
		return info, err
	}
	if info := r.resolveManifest(ctx, resp, base); info != nil {
		return info, nil
	}
	return nil, nil
}

// baseInfo carries the fields shared by every delivery path of a response.
func (r *ClientResolver) baseInfo(resp *innertube.PlayerResponse, profile innertube.ClientProfile) StreamInfo {
	expiresAt := time.Now().Add(r.cfg.DefaultTTL)
	if secs, err := strconv.Atoi(resp.StreamingData.ExpiresInSeconds); err == nil && secs > 0 {
		expiresAt = time.Now().Add(time.Duration(secs) * time.Second)
	}
	var durationMs int64
	if secs, err := strconv.ParseInt(resp.VideoDetails.LengthSeconds, 10, 64); err == nil {
		durationMs = secs * 1000
	}
	return StreamInfo{
		DurationMs: durationMs,
		ExpiresAt:  expiresAt,
		Headers:    map[string]string{"User-Agent": profile.UserAgent},
		ClientUsed: profile.Name,
	}
}

func (r *ClientResolver) resolveManifest(ctx context.Context, resp *innertube.PlayerResponse, base StreamInfo) *StreamInfo {
	masterURL := resp.StreamingData.HlsManifestURL
	if masterURL == "" {
		return nil
	}
	out := base
	out.IsSegmented = true
	out.MimeType = "application/vnd.apple.mpegurl"
	out.BitrateBps = r.cfg.ManifestBitrateBps
	out.URL = masterURL

	body, err := r.fetch(ctx, masterURL, base.Headers)
	if err != nil {
		r.logger.Debug().Str("client", base.ClientUsed).Err(err).Msg("master manifest fetch failed")
		return nil
	}
	if rendition := manifest.BestAudioRendition(string(body), masterURL); rendition != "" {
		out.URL = rendition
	}
	// An empty rendition degrades to the master manifest itself.
	return &out
}

func (r *ClientResolver) resolveDirect(ctx context.Context, trackID string, resp *innertube.PlayerResponse, base StreamInfo) (*StreamInfo, error) {
	candidates := rankAudioFormats(resp.StreamingData.AdaptiveFormats)
	if len(candidates) == 0 {
		return nil, nil
	}

	var bestUnverified *StreamInfo
	for _, f := range candidates {
		finalURL, err := r.materializeURL(ctx, trackID, f)
		if err != nil {
			r.logger.Debug().
				Str("track_id", trackID).
				Int("itag", f.Itag).
				Err(err).
				Msg("url derivation failed")
			continue
		}

		out := base
		out.URL = finalURL
		out.MimeType = f.MimeType
		out.BitrateBps = effectiveBitrate(f)

		if err := preflight(ctx, r.cfg.HTTPClient, finalURL, base.Headers); err != nil {
			r.logger.Debug().
				Str("track_id", trackID).
				Int("itag", f.Itag).
				Err(err).
				Msg("pre-flight rejected candidate")
			if bestUnverified == nil {
				out := out
				bestUnverified = &out
			}
			continue
		}
		return &out, nil
	}

	// Last resort on platforms where pre-flight itself is unreliable.
	if !r.cfg.ConfirmReachability && bestUnverified != nil {
		return bestUnverified, nil
	}
	return nil, nil
}

// materializeURL turns a format into a fetchable URL, deciphering gated
// signature/throttle parameters when needed.
func (r *ClientResolver) materializeURL(ctx context.Context, trackID string, f innertube.Format) (string, error) {
	if f.URL != "" {
		return r.transformThrottleParam(ctx, trackID, f.URL)
	}

	cipher := f.SignatureCipher
	if cipher == "" {
		cipher = f.Cipher
	}
	if cipher == "" {
		return "", fmt.Errorf("format itag=%d has neither url nor cipher", f.Itag)
	}

	params, err := url.ParseQuery(cipher)
	if err != nil {
		return "", fmt.Errorf("malformed cipher: %w", err)
	}
	rawURL := params.Get("url")
	if rawURL == "" {
		return "", fmt.Errorf("cipher missing url")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("cipher url invalid: %w", err)
	}

	if s := params.Get("s"); s != "" {
		d, err := r.decipherer(ctx, trackID)
		if err != nil {
			return "", err
		}
		decSig, err := d.DecipherSignature(s)
		if err != nil {
			return "", err
		}
		sp := params.Get("sp")
		if sp == "" {
			sp = "signature"
		}
		q := u.Query()
		q.Set(sp, decSig)
		u.RawQuery = q.Encode()
	}

	return r.transformThrottleParam(ctx, trackID, u.String())
}

// transformThrottleParam rewrites the 'n' query parameter. A failed rewrite
// keeps the original value: the URL usually still plays, just throttled.
func (r *ClientResolver) transformThrottleParam(ctx context.Context, trackID, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	n := q.Get("n")
	if n == "" {
		return rawURL, nil
	}
	d, err := r.decipherer(ctx, trackID)
	if err != nil {
		r.logger.Warn().Str("track_id", trackID).Err(err).Msg("player script unavailable, keeping original n value")
		return rawURL, nil
	}
	decN, err := d.DecipherN(n)
	if err != nil {
		r.logger.Warn().Str("track_id", trackID).Err(err).Msg("n transform failed, keeping original value")
		return rawURL, nil
	}
	q.Set("n", decN)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (r *ClientResolver) decipherer(ctx context.Context, trackID string) (*playerjs.Decipherer, error) {
	if r.scripts == nil {
		return nil, fmt.Errorf("no player script resolver configured")
	}
	playerURL, err := r.scripts.GetPlayerURL(ctx, trackID)
	if err != nil {
		return nil, err
	}
	js, err := r.scripts.GetPlayerJS(ctx, playerURL)
	if err != nil {
		return nil, err
	}
	return playerjs.NewDecipherer(js), nil
}

func (r *ClientResolver) fetch(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := r.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status code: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
