package innertube

import "net/http"

// ClientProfile describes one upstream access pattern. Profiles succeed or
// fail independently of each other for the same track id.
type ClientProfile struct {
	// ID is the registry alias used for ordering and diagnostics
	// (e.g. "ios"), distinct from the upstream clientName ("IOS").
	ID            string
	Name          string
	Version       string
	APIKey        string
	UserAgent     string
	ContextNameID int
	Host          string
	Headers       http.Header
	Screen        string // e.g. "EMBED"

	// PrefersManifestFirst selects manifest-based resolution before
	// direct audio extraction for this profile.
	PrefersManifestFirst bool
}

// Registry provides ordered access to the configured client profiles.
// The order is a deliberate tie-break and must be deterministic for a
// given configuration.
type Registry interface {
	Get(alias string) (ClientProfile, bool)
	Ordered() []ClientProfile
}
