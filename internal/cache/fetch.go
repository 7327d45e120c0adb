package cache

import (
	"context"
	"fmt"
	"time"
)

// Fetch returns the live cached value under key, or runs fn through the
// cache's deduplication group and stores its result with ttl. Concurrent
// fetches of one key execute fn once. Errors are returned to every waiter
// and never cached.
func Fetch[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if cached, ok := c.Get(key); ok {
		value, ok := cached.(T)
		if !ok {
			return zero, fmt.Errorf("cache: key %q holds %T, not %T", key, cached, zero)
		}
		return value, nil
	}

	result, err := c.Do(ctx, key, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	value, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("cache: key %q resolved %T, not %T", key, result, zero)
	}
	c.Set(key, value, ttl)
	return value, nil
}
