package cache

import (
	"context"
	"time"
)

// Store is the key/value surface the caching layer needs: TTL writes, atomic
// increment and pattern-based bulk delete. Backed by Redis in production and
// by the in-memory implementation in tests and zero-config dev setups.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	DelPattern(ctx context.Context, pattern string) error
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Close() error
}
