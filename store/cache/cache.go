// Package cache provides the in-process read cache used by the store.
// Backed by ristretto: admission-controlled, TTL-aware, safe for
// concurrent use.
package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

// Config holds cache settings.
type Config struct {
	// DefaultTTL applies to entries stored via Set.
	DefaultTTL time.Duration
	// MaxItems bounds the number of cached entries.
	MaxItems int64
}

// Cache is a TTL cache for store reads.
type Cache struct {
	inner      *ristretto.Cache
	defaultTTL time.Duration
}

// New creates a cache. Zero config fields fall back to sane defaults.
func New(config Config) *Cache {
	if config.MaxItems <= 0 {
		config.MaxItems = 1000
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 5 * time.Minute
	}

	inner, err := ristretto.NewCache(&ristretto.Config{
		// Ristretto wants ~10x counters per tracked item for admission stats.
		NumCounters: config.MaxItems * 10,
		MaxCost:     config.MaxItems,
		BufferItems: 64,
	})
	if err != nil {
		// Only reachable with non-positive sizes, which are defaulted above.
		panic(err)
	}

	return &Cache{
		inner:      inner,
		defaultTTL: config.DefaultTTL,
	}
}

// Get returns the cached value for key.
func (c *Cache) Get(key string) (any, bool) {
	return c.inner.Get(key)
}

// Set stores value under key with the default TTL. Writes are applied
// asynchronously; a following Get may briefly miss.
func (c *Cache) Set(key string, value any) {
	c.inner.SetWithTTL(key, value, 1, c.defaultTTL)
}

// SetWithTTL stores value under key with an explicit TTL.
func (c *Cache) SetWithTTL(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.inner.SetWithTTL(key, value, 1, ttl)
}

// Delete removes key from the cache.
func (c *Cache) Delete(key string) {
	c.inner.Del(key)
}

// Clear drops every cached entry.
func (c *Cache) Clear() {
	c.inner.Clear()
}

// Wait blocks until buffered writes are applied. Tests use this to make
// Set visible before asserting on Get.
func (c *Cache) Wait() {
	c.inner.Wait()
}

// Close releases the cache's internal resources.
func (c *Cache) Close() {
	c.inner.Close()
}
