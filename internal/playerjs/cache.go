package playerjs

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache stores fetched player script bodies. Scripts rotate upstream every
// few days, so entries carry a TTL.
type Cache interface {
	Get(playerKey string) (string, bool)
	Set(playerKey string, jsBody string)
}

type lruCache struct {
	inner *expirable.LRU[string, string]
}

const (
	defaultCacheSize = 8
	defaultCacheTTL  = 12 * time.Hour
)

// NewCache creates a TTL-bounded LRU script cache.
func NewCache() Cache {
	return NewCacheWithTTL(defaultCacheSize, defaultCacheTTL)
}

func NewCacheWithTTL(size int, ttl time.Duration) Cache {
	return &lruCache{
		inner: expirable.NewLRU[string, string](size, nil, ttl),
	}
}

func (c *lruCache) Get(playerKey string) (string, bool) {
	return c.inner.Get(playerKey)
}

func (c *lruCache) Set(playerKey string, jsBody string) {
	c.inner.Add(playerKey, jsBody)
}
