package innertube

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	neturl "net/url"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/famomatic/playflow/internal/log"
)

// ClientConfig tunes the metadata client.
type ClientConfig struct {
	HTTPClient *http.Client
	// BaseURL overrides the upstream host, used by tests and proxies.
	// The default is derived from each profile's Host.
	BaseURL string
	// RequestsPerSecond throttles metadata fetches across all profiles.
	// Zero disables throttling.
	RequestsPerSecond float64
	MaxRetries        int
	InitialBackoff    time.Duration
}

// Client fetches streaming metadata for a track id through one client profile.
type Client struct {
	cfg     ClientConfig
	limiter *rate.Limiter
	logger  zerolog.Logger
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Client{
		cfg:     cfg,
		limiter: limiter,
		logger:  log.WithComponent("innertube"),
	}
}

// GetStreamingMetadata performs one /player fetch for trackID using profile.
// A non-OK playability status is returned as a PlayabilityError so callers
// can treat it as this profile's failure and move on.
func (c *Client) GetStreamingMetadata(ctx context.Context, trackID string, profile ClientProfile) (*PlayerResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		resp, err := c.fetch(ctx, trackID, profile)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isRetryable(err) || attempt == c.cfg.MaxRetries {
			break
		}
		backoff := c.cfg.InitialBackoff << attempt
		c.logger.Debug().
			Str("track_id", trackID).
			Str("client", profile.Name).
			Dur("backoff", backoff).
			Err(err).
			Msg("metadata fetch retry")
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

func (c *Client) fetch(ctx context.Context, trackID string, profile ClientProfile) (*PlayerResponse, error) {
	url := c.endpoint(profile)
	if profile.APIKey != "" {
		url += "?key=" + neturl.QueryEscape(profile.APIKey)
	}

	body, err := MarshalRequest(NewPlayerRequest(profile, trackID))
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", profile.UserAgent)
	httpReq.Header.Set("Origin", "https://"+profile.Host)
	httpReq.Header.Set("Referer", "https://"+profile.Host+"/watch?v="+trackID)
	for k, v := range profile.Headers {
		for _, val := range v {
			httpReq.Header.Add(k, val)
		}
	}

	resp, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPStatusError{
			Client:     profile.Name,
			StatusCode: resp.StatusCode,
		}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var playerResp PlayerResponse
	if err := json.Unmarshal(respBody, &playerResp); err != nil {
		return nil, err
	}

	if !playerResp.PlayabilityStatus.IsOK() {
		return nil, &PlayabilityError{
			Client: profile.Name,
			Status: playerResp.PlayabilityStatus.Status,
			Reason: playerResp.PlayabilityStatus.Reason,
		}
	}

	return &playerResp, nil
}

func (c *Client) endpoint(profile ClientProfile) string {
	if c.cfg.BaseURL != "" {
		return c.cfg.BaseURL + "/youtubei/v1/player"
	}
	return "https://" + profile.Host + "/youtubei/v1/player"
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	var playErr *PlayabilityError
	return !errors.As(err, &playErr)
}
