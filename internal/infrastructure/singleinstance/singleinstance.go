package singleinstance

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/chatwire/livechat/internal/infrastructure/cache"
	"github.com/chatwire/livechat/internal/infrastructure/logging"
)

const (
	lockKeyPrefix     = "worker:instance:lock:"
	lockTTL           = 60 * time.Second
	heartbeatInterval = 15 * time.Second
	acquireInterval   = 30 * time.Second
)

// ErrLockLost means the lease changed hands mid-run, usually after a pause
// long enough for the TTL to lapse.
var ErrLockLost = errors.New("worker instance lock lost to another holder")

// Guard keeps at most one worker of a given type alive across the fleet. The
// holder refreshes a store-side lease; if the process dies the lease expires
// and a standby replica takes over within the TTL.
type Guard struct {
	store      cache.Store
	workerType string
	instanceID string
	logger     logging.Logger
}

func NewGuard(store cache.Store, workerType string, logger logging.Logger) *Guard {
	return &Guard{
		store:      store,
		workerType: workerType,
		instanceID: uuid.NewString(),
		logger:     logger,
	}
}

func (g *Guard) key() string {
	return lockKeyPrefix + g.workerType
}

// Acquire attempts to take the lease once.
func (g *Guard) Acquire(ctx context.Context) (bool, error) {
	return g.store.SetNX(ctx, g.key(), g.instanceID, lockTTL)
}

// Run blocks until the lease is held, then runs fn while refreshing it. fn's
// context is canceled if the lease is lost. Standby replicas simply sit in
// the acquire loop until the active holder goes away.
func (g *Guard) Run(ctx context.Context, fn func(context.Context) error) error {
	if err := g.waitForLease(ctx); err != nil {
		return err
	}

	g.logger.Info(logging.General, logging.Startup, "worker instance lock acquired", map[logging.ExtraKey]any{
		logging.CacheKey: g.key(),
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer g.release()

	heartbeatErr := make(chan error, 1)
	go func() {
		heartbeatErr <- g.heartbeatLoop(runCtx)
	}()

	fnErr := make(chan error, 1)
	go func() {
		fnErr <- fn(runCtx)
	}()

	select {
	case err := <-heartbeatErr:
		cancel()
		<-fnErr
		return err
	case err := <-fnErr:
		return err
	}
}

func (g *Guard) waitForLease(ctx context.Context) error {
	for {
		acquired, err := g.Acquire(ctx)
		if err != nil {
			g.logger.Warn(logging.Redis, logging.Locking, "worker lease acquire failed", map[logging.ExtraKey]any{
				logging.CacheKey:     g.key(),
				logging.ErrorMessage: err.Error(),
			})
		}
		if acquired {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(acquireInterval):
		}
	}
}

func (g *Guard) heartbeatLoop(ctx context.Context) error {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := g.heartbeat(ctx); err != nil {
				return err
			}
		}
	}
}

func (g *Guard) heartbeat(ctx context.Context) error {
	holder, found, err := g.store.Get(ctx, g.key())
	if err != nil {
		// A flaky store should not kill the worker; the lease TTL covers the
		// gap until the next heartbeat.
		g.logger.Warn(logging.Redis, logging.Locking, "worker lease heartbeat failed", map[logging.ExtraKey]any{
			logging.CacheKey:     g.key(),
			logging.ErrorMessage: err.Error(),
		})
		return nil
	}

	switch {
	case !found:
		// The lease expired, most likely a long pause on our side.
		acquired, err := g.Acquire(ctx)
		if err != nil || !acquired {
			return ErrLockLost
		}
		return nil

	case holder != g.instanceID:
		return ErrLockLost

	default:
		return g.store.Expire(ctx, g.key(), lockTTL)
	}
}

func (g *Guard) release() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	holder, found, err := g.store.Get(ctx, g.key())
	if err != nil || !found || holder != g.instanceID {
		return
	}
	_ = g.store.Del(ctx, g.key())
}
