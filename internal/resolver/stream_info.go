// Package resolver turns an opaque track id into a playable audio stream URL
// by probing an ordered list of upstream client profiles.
package resolver

import "time"

// StreamInfo is the normalized result of a successful resolution. It is an
// immutable value; re-resolution produces a new one.
type StreamInfo struct {
	URL         string
	MimeType    string
	BitrateBps  int
	DurationMs  int64
	ExpiresAt   time.Time
	Headers     map[string]string
	IsSegmented bool
	ClientUsed  string
}

// Expired reports whether the upstream URL's validity window has passed.
func (s StreamInfo) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// WithURL returns a copy pointing at url with headers stripped, used when a
// stream has been mirrored to local storage.
func (s StreamInfo) WithURL(url string) StreamInfo {
	out := s
	out.URL = url
	out.Headers = nil
	return out
}
