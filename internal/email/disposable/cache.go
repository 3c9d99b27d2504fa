package disposable

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "signup:disposable:"

// CacheObserver records cache hits, misses and errors.
type CacheObserver interface {
	IncDisposableCache(result string)
}

// Cached memoizes verdicts of next in Redis. Redis failures degrade to calling next
// directly; errors from next are never cached.
type Cached struct {
	next     Detector
	client   redis.Cmdable
	ttl      time.Duration
	logger   *slog.Logger
	observer CacheObserver
}

func NewCached(next Detector, client redis.Cmdable, ttl time.Duration, logger *slog.Logger, observer CacheObserver) *Cached {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{next: next, client: client, ttl: ttl, logger: logger, observer: observer}
}

func (c *Cached) IsDisposable(ctx context.Context, domain string) (bool, error) {
	key := cacheKeyPrefix + domain

	val, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		c.observe("hit")
		return val == "1", nil
	case errors.Is(err, redis.Nil):
		c.observe("miss")
	default:
		c.observe("error")
		c.logger.WarnContext(ctx, "disposable cache read failed", "domain", domain, "error", err)
	}

	blocked, err := c.next.IsDisposable(ctx, domain)
	if err != nil {
		return false, err
	}

	stored := "0"
	if blocked {
		stored = "1"
	}
	if err := c.client.Set(ctx, key, stored, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "disposable cache write failed", "domain", domain, "error", err)
	}
	return blocked, nil
}

func (c *Cached) observe(result string) {
	if c.observer != nil {
		c.observer.IncDisposableCache(result)
	}
}
