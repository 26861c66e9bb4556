package innertube

import "strings"

type orderedRegistry struct {
	byAlias map[string]ClientProfile
	order   []string
}

// NewRegistry creates a registry with the default clients in the default
// trial order.
func NewRegistry() Registry {
	return NewRegistryWithOrder(nil)
}

// NewRegistryWithOrder creates a registry whose Ordered() follows the given
// alias order. Unknown aliases are dropped; an empty order falls back to the
// package default.
func NewRegistryWithOrder(order []string) Registry {
	byAlias := map[string]ClientProfile{
		"ios":     iOSClient,
		"android": AndroidClient,
		"web":     WebClient,
		"mweb":    MWebClient,
		"tv":      TVClient,
	}
	if len(order) == 0 {
		order = defaultProfileOrder
	}
	normalized := make([]string, 0, len(order))
	seen := map[string]struct{}{}
	for _, alias := range order {
		alias = strings.ToLower(strings.TrimSpace(alias))
		if _, ok := byAlias[alias]; !ok {
			continue
		}
		if _, dup := seen[alias]; dup {
			continue
		}
		seen[alias] = struct{}{}
		normalized = append(normalized, alias)
	}
	return &orderedRegistry{
		byAlias: byAlias,
		order:   normalized,
	}
}

func (r *orderedRegistry) Get(alias string) (ClientProfile, bool) {
	c, ok := r.byAlias[strings.ToLower(strings.TrimSpace(alias))]
	return c, ok
}

func (r *orderedRegistry) Ordered() []ClientProfile {
	out := make([]ClientProfile, 0, len(r.order))
	for _, alias := range r.order {
		out = append(out, r.byAlias[alias])
	}
	return out
}
