// Package manifest selects the best audio-only rendition from a segmented
// stream master playlist.
package manifest

import (
	"bufio"
	"net/url"
	"strconv"
	"strings"
)

var audioCodecTokens = []string{"mp4a", "opus", "vorbis", "flac", "ac-3", "ec-3"}

var videoCodecTokens = []string{"avc1", "avc3", "hvc1", "hev1", "vp8", "vp9", "vp09", "av01"}

// BestAudioRendition parses a master playlist and returns the URL of the best
// audio-only rendition, or "" when the playlist declares none. Callers fall
// back to the master manifest itself in that case. Malformed input degrades
// to "" rather than failing.
func BestAudioRendition(raw, baseURL string) string {
	if u := lastDeclaredAudioMedia(raw, baseURL); u != "" {
		return u
	}
	return bestAudioOnlyVariant(raw, baseURL)
}

// lastDeclaredAudioMedia returns the last EXT-X-MEDIA audio rendition URI.
// Providers list renditions in ascending quality, so the last one wins.
func lastDeclaredAudioMedia(raw, baseURL string) string {
	var last string
	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "#EXT-X-MEDIA:") {
			continue
		}
		attrs := parseAttributes(strings.TrimPrefix(line, "#EXT-X-MEDIA:"))
		if !strings.EqualFold(attrs["TYPE"], "AUDIO") {
			continue
		}
		if uri := attrs["URI"]; uri != "" {
			last = uri
		}
	}
	if last == "" {
		return ""
	}
	return resolveAgainst(baseURL, last)
}

// bestAudioOnlyVariant scans EXT-X-STREAM-INF variants whose codec set is
// audio-only and returns the highest-bandwidth one. The line immediately
// following each declaration is its URL.
func bestAudioOnlyVariant(raw, baseURL string) string {
	var (
		bestURL       string
		bestBandwidth int
		pending       int // bandwidth of an audio-only variant awaiting its URL line
		awaitingURL   bool
	)
	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#EXT-X-STREAM-INF:") {
			awaitingURL = false
			attrs := parseAttributes(strings.TrimPrefix(line, "#EXT-X-STREAM-INF:"))
			if !isAudioOnlyCodecs(attrs["CODECS"]) {
				continue
			}
			bandwidth, err := strconv.Atoi(attrs["BANDWIDTH"])
			if err != nil {
				continue
			}
			pending = bandwidth
			awaitingURL = true
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		if awaitingURL {
			if pending > bestBandwidth || bestURL == "" {
				bestBandwidth = pending
				bestURL = line
			}
			awaitingURL = false
		}
	}
	if bestURL == "" {
		return ""
	}
	return resolveAgainst(baseURL, bestURL)
}

func isAudioOnlyCodecs(codecs string) bool {
	if codecs == "" {
		return false
	}
	lower := strings.ToLower(codecs)
	hasAudio := false
	for _, token := range audioCodecTokens {
		if strings.Contains(lower, token) {
			hasAudio = true
			break
		}
	}
	if !hasAudio {
		return false
	}
	for _, token := range videoCodecTokens {
		if strings.Contains(lower, token) {
			return false
		}
	}
	return true
}

// parseAttributes splits an attribute list like
// TYPE=AUDIO,GROUP-ID="aud1",URI="a/b.m3u8" respecting quoted values.
func parseAttributes(list string) map[string]string {
	attrs := make(map[string]string)
	var (
		key      strings.Builder
		value    strings.Builder
		inValue  bool
		inQuotes bool
	)
	flush := func() {
		k := strings.TrimSpace(key.String())
		if k != "" {
			attrs[strings.ToUpper(k)] = value.String()
		}
		key.Reset()
		value.Reset()
		inValue = false
	}
	for _, r := range list {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == '=' && !inValue:
			inValue = true
		case r == ',' && !inQuotes:
			flush()
		case inValue:
			value.WriteRune(r)
		default:
			key.WriteRune(r)
		}
	}
	flush()
	return attrs
}

// resolveAgainst joins a possibly relative rendition URI with the manifest's
// base URL: absolute passthrough, then URL join, then a naive directory
// concatenation as last resort.
func resolveAgainst(baseURL, ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	base, err := url.Parse(baseURL)
	if err == nil && base.Scheme != "" {
		if refURL, refErr := url.Parse(ref); refErr == nil {
			return base.ResolveReference(refURL).String()
		}
	}
	if idx := strings.LastIndex(baseURL, "/"); idx >= 0 {
		return baseURL[:idx+1] + ref
	}
	return ref
}
