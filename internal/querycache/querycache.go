// Package querycache provides the TTL cache in front of the storage engine.
// The cache is a pure accelerator: a nil or cold cache is a miss, never an
// error, and every result it serves was produced by the same compute
// function a miss would run.
package querycache

import (
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/mycota/fieldobs/internal/logging"
	"github.com/mycota/fieldobs/internal/observability/metrics"
)

// Cache wraps a go-cache store with hit/miss accounting. A nil *Cache is a
// valid, permanently-cold cache.
type Cache struct {
	name    string
	store   *gocache.Cache
	metrics *metrics.CacheMetrics
	logger  *slog.Logger
}

// New creates a named cache. The metrics collector may be nil.
func New(name string, cm *metrics.CacheMetrics) *Cache {
	return &Cache{
		name:    name,
		store:   gocache.New(time.Hour, 10*time.Minute),
		metrics: cm,
		logger:  logging.ForService("querycache"),
	}
}

// Get returns the cached value for key and whether it was present.
func (c *Cache) Get(key string) (any, bool) {
	if c == nil || c.store == nil {
		return nil, false
	}

	value, found := c.store.Get(key)
	c.record(found)
	return value, found
}

// Set stores value under key for the given TTL.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if c == nil || c.store == nil {
		return
	}
	c.store.Set(key, value, ttl)
}

// Flush atomically invalidates the entire namespace.
func (c *Cache) Flush() {
	if c == nil || c.store == nil {
		return
	}

	c.store.Flush()
	if c.metrics != nil {
		c.metrics.RecordFlush(c.name)
	}
	if c.logger != nil {
		c.logger.Info("cache flushed", "cache", c.name)
	}
}

// Delete removes a single key.
func (c *Cache) Delete(key string) {
	if c == nil || c.store == nil {
		return
	}
	c.store.Delete(key)
}

// ItemCount returns the number of entries, expired ones included.
func (c *Cache) ItemCount() int {
	if c == nil || c.store == nil {
		return 0
	}
	return c.store.ItemCount()
}

func (c *Cache) record(hit bool) {
	if c.metrics == nil {
		return
	}
	if hit {
		c.metrics.RecordOperation(c.name, "hit")
	} else {
		c.metrics.RecordOperation(c.name, "miss")
	}
}

// GetOrCompute returns the cached value for key, or runs fn, caches its
// result for ttl, and returns it. Both the result-cache and the count-cache
// call sites share this single hit/miss branch. Compute errors are returned
// without caching, so a failed computation is retried on the next request.
func GetOrCompute[T any](c *Cache, key string, ttl time.Duration, fn func() (T, error)) (T, error) {
	if cached, found := c.Get(key); found {
		if value, ok := cached.(T); ok {
			return value, nil
		}
		// A type mismatch means the key was reused across shapes; treat as
		// a miss and overwrite below.
	}

	value, err := fn()
	if err != nil {
		return value, err
	}

	c.Set(key, value, ttl)
	return value, nil
}
