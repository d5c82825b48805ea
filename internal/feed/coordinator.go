package feed

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gramnet/pulse/internal/cache"
	"github.com/gramnet/pulse/pkg/logging"
)

// Coordinator is the read-through layer between feed queries and the
// cache. A cache failure of any kind degrades to a recompute; only the
// compute itself can fail a read. There is no request collapsing: two
// concurrent misses on the same key both compute and both write, which
// is harmless because the entries are equal.
type Coordinator struct {
	cache  *cache.Cache
	logger *zap.Logger
}

// NewCoordinator creates a coordinator over the given cache.
func NewCoordinator(c *cache.Cache) *Coordinator {
	return &Coordinator{
		cache:  c,
		logger: logging.WithComponent("feed-cache"),
	}
}

// GetOrCompute fills dest from the cache, or runs compute to fill it
// and stores the result under key for ttl. compute must leave dest
// fully populated on success.
func (c *Coordinator) GetOrCompute(ctx context.Context, key string, ttl time.Duration, dest interface{}, compute func(context.Context) error) error {
	err := c.cache.GetJSON(ctx, key, dest)
	if err == nil {
		return nil
	}
	if err != cache.ErrCacheMiss && err != cache.ErrCacheDisabled {
		c.logger.Warn("cache read failed, recomputing", zap.String("key", key), zap.Error(err))
	}

	if err := compute(ctx); err != nil {
		return err
	}

	if serr := c.cache.SetJSON(ctx, key, dest, ttl); serr != nil && serr != cache.ErrCacheDisabled {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(serr))
	}
	return nil
}

// Invalidate removes exact keys. Best effort.
func (c *Coordinator) Invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := c.cache.Delete(ctx, keys...); err != nil && err != cache.ErrCacheDisabled {
		c.logger.Warn("cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

// InvalidatePattern removes every key matching each pattern. Best
// effort.
func (c *Coordinator) InvalidatePattern(ctx context.Context, patterns ...string) {
	for _, p := range patterns {
		if err := c.cache.DeletePattern(ctx, p); err != nil && err != cache.ErrCacheDisabled {
			c.logger.Warn("cache pattern invalidation failed", zap.String("pattern", p), zap.Error(err))
		}
	}
}
