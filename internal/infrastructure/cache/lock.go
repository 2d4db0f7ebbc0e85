package cache

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/chatwire/livechat/internal/infrastructure/logging"
	"github.com/chatwire/livechat/internal/infrastructure/metrics"
)

const (
	lockKeyPrefix  = "lock:"
	DefaultLockTTL = 3 * time.Second
)

// Lock is a short-lived mutual-exclusion record held by at most one process.
// The store-side TTL guarantees forward progress if the holder crashes.
type Lock struct {
	store Store
	key   string
	token string
}

// Release deletes the lock record. Best-effort: a failed delete only means
// other callers wait out the TTL.
func (l *Lock) Release(ctx context.Context) {
	_ = l.store.Del(ctx, l.key)
}

// LockManager hands out best-effort distributed locks over the cache store.
// It exists to prevent duplicate concurrent work, not to guard correctness:
// callers branch on the boolean and proceed without the lock when it is
// unavailable.
type LockManager struct {
	store  Store
	ttl    time.Duration
	logger logging.Logger
}

func NewLockManager(store Store, logger logging.Logger) *LockManager {
	return &LockManager{
		store:  store,
		ttl:    DefaultLockTTL,
		logger: logger,
	}
}

// TryAcquire attempts a SET NX with the configured hold time. Store errors
// degrade to "not acquired" so a degraded lock service never fails the
// caller's operation.
func (m *LockManager) TryAcquire(ctx context.Context, name string) (*Lock, bool) {
	key := lockKeyPrefix + name
	token := uuid.NewString()

	acquired, err := m.store.SetNX(ctx, key, token, m.ttl)
	if err != nil {
		metrics.LockAcquisitions.WithLabelValues("error").Inc()
		m.logger.Warn(logging.Redis, logging.Locking, "lock acquire failed", map[logging.ExtraKey]any{
			logging.CacheKey:     key,
			logging.ErrorMessage: err.Error(),
		})
		return nil, false
	}
	if !acquired {
		metrics.LockAcquisitions.WithLabelValues("busy").Inc()
		return nil, false
	}

	metrics.LockAcquisitions.WithLabelValues("acquired").Inc()
	return &Lock{store: m.store, key: key, token: token}, true
}
