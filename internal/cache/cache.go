// Package cache provides the per-provider response cache used by the
// enrichment orchestrator. Backends are interchangeable: an in-process
// store, Redis, or both tiered.
package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/catalog-enricher/internal/monitoring"
)

// Store is a TTL key/value backend.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// TTLStore is implemented by backends that can report the remaining
// lifetime of an entry.
type TTLStore interface {
	GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, bool, error)
}

// Cache namespaces entries per provider and turns every backend failure into
// a miss. A nil *Cache always misses.
type Cache struct {
	store   Store
	prefix  string
	metrics *monitoring.Metrics
}

// New wraps store. prefix is prepended to every backend key.
func New(store Store, prefix string, m *monitoring.Metrics) *Cache {
	return &Cache{store: store, prefix: prefix, metrics: m}
}

func (c *Cache) storeKey(provider, key string) string {
	return c.prefix + provider + ":" + key
}

// Get returns the cached value for (provider, key).
func (c *Cache) Get(ctx context.Context, provider, key string) ([]byte, bool) {
	if c == nil || c.store == nil {
		return nil, false
	}
	val, ok, err := c.store.Get(ctx, c.storeKey(provider, key))
	if err != nil {
		zap.L().Debug("cache: get failed, treating as miss",
			zap.String("provider", provider),
			zap.Error(err),
		)
		c.metrics.ObserveCache(provider, "error")
		return nil, false
	}
	if !ok {
		c.metrics.ObserveCache(provider, "miss")
		return nil, false
	}
	c.metrics.ObserveCache(provider, "hit")
	return val, true
}

// Set stores value for (provider, key) for ttl. A non-positive ttl disables
// caching for the entry.
func (c *Cache) Set(ctx context.Context, provider, key string, value []byte, ttl time.Duration) {
	if c == nil || c.store == nil || ttl <= 0 {
		return
	}
	if err := c.store.Set(ctx, c.storeKey(provider, key), value, ttl); err != nil {
		zap.L().Debug("cache: set failed",
			zap.String("provider", provider),
			zap.Error(err),
		)
	}
}
