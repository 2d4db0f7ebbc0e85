package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/chatwire/livechat/internal/infrastructure/logging"
	"github.com/chatwire/livechat/internal/infrastructure/metrics"
)

const (
	scopeVersionPrefix = "v:"
	scopeVersionTTL    = 7 * 24 * time.Hour
	maxJitterFraction  = 0.10
)

// Loader computes a value on cache miss.
type Loader func(ctx context.Context) (any, error)

// Cache is a read-through cache with single-flight recomputation. At most one
// loader per key runs concurrently system-wide while the lock service is
// healthy; when it is not, callers degrade to at-least-once loader execution
// rather than failing.
type Cache struct {
	store  Store
	locks  *LockManager
	logger logging.Logger
}

func New(store Store, locks *LockManager, logger logging.Logger) *Cache {
	return &Cache{
		store:  store,
		locks:  locks,
		logger: logger,
	}
}

// Wrap returns the cached JSON value for key, or runs the loader under a
// best-effort distributed lock, stores the result with a jittered TTL and
// returns it.
func (c *Cache) Wrap(ctx context.Context, key string, ttl time.Duration, loader Loader) (json.RawMessage, error) {
	if raw, ok := c.read(ctx, key); ok {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return raw, nil
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()

	lock, acquired := c.locks.TryAcquire(ctx, key)

	// A concurrent holder may have populated the key while we raced for the
	// lock.
	if raw, ok := c.read(ctx, key); ok {
		if acquired {
			lock.Release(ctx)
		}
		return raw, nil
	}

	value, err := loader(ctx)
	if err != nil {
		if acquired {
			lock.Release(ctx)
		}
		return nil, err
	}

	body, err := json.Marshal(value)
	if err != nil {
		if acquired {
			lock.Release(ctx)
		}
		return nil, fmt.Errorf("failed to marshal cache value for %s: %w", key, err)
	}

	if err := c.store.Set(ctx, key, string(body), jitterTTL(ttl)); err != nil {
		c.logger.Warn(logging.Redis, logging.CacheWrite, "cache write failed", map[logging.ExtraKey]any{
			logging.CacheKey:     key,
			logging.ErrorMessage: err.Error(),
		})
	}

	if acquired {
		lock.Release(ctx)
	}

	return body, nil
}

// read returns the stored value only when it parses as JSON; anything else is
// treated as a miss.
func (c *Cache) read(ctx context.Context, key string) (json.RawMessage, bool) {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn(logging.Redis, logging.CacheRead, "cache read failed", map[logging.ExtraKey]any{
			logging.CacheKey:     key,
			logging.ErrorMessage: err.Error(),
		})
		return nil, false
	}
	if !ok || !json.Valid([]byte(raw)) {
		return nil, false
	}
	return json.RawMessage(raw), true
}

// Get unmarshals the cached value into valuePtr, reporting whether the key
// was present.
func (c *Cache) Get(ctx context.Context, key string, valuePtr any) (bool, error) {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	return true, json.Unmarshal([]byte(raw), valuePtr)
}

func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	body, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, key, string(body), ttl)
}

func (c *Cache) Del(ctx context.Context, keys ...string) error {
	return c.store.Del(ctx, keys...)
}

func (c *Cache) DelPattern(ctx context.Context, pattern string) error {
	return c.store.DelPattern(ctx, pattern)
}

// ScopeVersion returns the current version for a scope, initializing it to
// "1" with a 7-day TTL on first read. Store errors fall back to "1" so a
// degraded store never fails the cached operation.
func (c *Cache) ScopeVersion(ctx context.Context, scope string) string {
	key := scopeVersionPrefix + scope

	version, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn(logging.Redis, logging.CacheRead, "scope version read failed", map[logging.ExtraKey]any{
			logging.CacheKey:     key,
			logging.ErrorMessage: err.Error(),
		})
		return "1"
	}
	if ok {
		return version
	}

	if err := c.store.Set(ctx, key, "1", scopeVersionTTL); err != nil {
		c.logger.Warn(logging.Redis, logging.CacheWrite, "scope version init failed", map[logging.ExtraKey]any{
			logging.CacheKey:     key,
			logging.ErrorMessage: err.Error(),
		})
	}
	return "1"
}

// BumpScope increments the scope version, making every previously-built key
// for the scope unreachable without enumerating them. Falls back to an
// explicit set when the atomic increment is unsupported in the current
// execution context.
func (c *Cache) BumpScope(ctx context.Context, scope string) error {
	key := scopeVersionPrefix + scope

	if _, err := c.store.Incr(ctx, key); err != nil {
		if setErr := c.store.Set(ctx, key, "2", scopeVersionTTL); setErr != nil {
			return fmt.Errorf("failed to bump scope %s: %w", scope, setErr)
		}
		return nil
	}

	return c.store.Expire(ctx, key, scopeVersionTTL)
}

// BumpNamespacedScope bumps the two-part scope <a>:<b>.
func (c *Cache) BumpNamespacedScope(ctx context.Context, a, b string) error {
	return c.BumpScope(ctx, a+":"+b)
}

// VersionedKey builds a composite cache key embedding the scope's current
// version and a canonical JSON encoding of the request parameters.
func (c *Cache) VersionedKey(ctx context.Context, scope, topic string, params any) (string, error) {
	encoded, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to encode cache key params: %w", err)
	}

	version := c.ScopeVersion(ctx, scope)
	return fmt.Sprintf("v%s:%s:%s", version, topic, encoded), nil
}

// jitterTTL shortens the TTL by up to 10% so keys written together do not
// expire together.
func jitterTTL(ttl time.Duration) time.Duration {
	span := int64(float64(ttl) * maxJitterFraction)
	if span <= 0 {
		return ttl
	}
	return ttl - time.Duration(rand.Int63n(span))
}
