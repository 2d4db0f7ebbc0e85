package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chatwire/livechat/internal/infrastructure/logging"
)

func newTestCache(t *testing.T) (*Cache, *MemoryStore) {
	t.Helper()

	store := NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	logger := logging.NewNopLogger()
	return New(store, NewLockManager(store, logger), logger), store
}

func TestWrapCachesLoaderResult(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	var calls int32
	loader := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return map[string]string{"name": "acme"}, nil
	}

	first, err := c.Wrap(ctx, "company:acme", time.Minute, loader)
	require.NoError(t, err)
	require.JSONEq(t, `{"name":"acme"}`, string(first))

	second, err := c.Wrap(ctx, "company:acme", time.Minute, loader)
	require.NoError(t, err)
	require.JSONEq(t, string(first), string(second))

	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestWrapHitSkipsLoaderUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	require.NoError(t, c.Set(ctx, "warm", "ready", time.Minute))

	var calls int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Wrap(ctx, "warm", time.Minute, func(ctx context.Context) (any, error) {
				atomic.AddInt32(&calls, 1)
				return nil, nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.EqualValues(t, 0, atomic.LoadInt32(&calls))
}

// rereadStore simulates a concurrent lock holder finishing between the first
// read and the read-after-lock.
type rereadStore struct {
	*MemoryStore
	key   string
	value string
	reads int
}

func (s *rereadStore) Get(ctx context.Context, key string) (string, bool, error) {
	if key == s.key {
		s.reads++
		if s.reads == 1 {
			return "", false, nil
		}
		return s.value, true, nil
	}
	return s.MemoryStore.Get(ctx, key)
}

func TestWrapRereadAfterLockAvoidsLoader(t *testing.T) {
	ctx := context.Background()

	store := &rereadStore{
		MemoryStore: NewMemoryStore(),
		key:         "contested",
		value:       `{"winner":"other"}`,
	}
	t.Cleanup(func() { _ = store.Close() })

	logger := logging.NewNopLogger()
	c := New(store, NewLockManager(store, logger), logger)

	raw, err := c.Wrap(ctx, "contested", time.Minute, func(ctx context.Context) (any, error) {
		t.Fatal("loader must not run when the re-read hits")
		return nil, nil
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"winner":"other"}`, string(raw))
}

func TestWrapLoaderErrorIsNotCached(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	wantErr := errors.New("upstream down")
	_, err := c.Wrap(ctx, "broken", time.Minute, func(ctx context.Context) (any, error) {
		return nil, wantErr
	})
	require.ErrorIs(t, err, wantErr)

	var out string
	found, err := c.Get(ctx, "broken", &out)
	require.NoError(t, err)
	require.False(t, found)
}

func TestWrapJitterStaysWithinTenPercent(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCache(t)

	ttl := 100 * time.Second
	_, err := c.Wrap(ctx, "jittered", ttl, func(ctx context.Context) (any, error) {
		return 42, nil
	})
	require.NoError(t, err)

	remaining := store.TTL("jittered")
	require.Greater(t, remaining, 89*time.Second)
	require.LessOrEqual(t, remaining, ttl)
}

func TestWrapTreatsCorruptEntryAsMiss(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCache(t)

	require.NoError(t, store.Set(ctx, "corrupt", "{not json", time.Minute))

	raw, err := c.Wrap(ctx, "corrupt", time.Minute, func(ctx context.Context) (any, error) {
		return "repaired", nil
	})
	require.NoError(t, err)
	require.Equal(t, `"repaired"`, string(raw))
}

func TestScopeVersionInitializesToOne(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCache(t)

	require.Equal(t, "1", c.ScopeVersion(ctx, "chats:acme"))

	stored, found, err := store.Get(ctx, "v:chats:acme")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "1", stored)
	require.Greater(t, store.TTL("v:chats:acme"), 6*24*time.Hour)
}

func TestBumpScopeInvalidatesVersionedKeys(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	params := struct {
		Page int `json:"page"`
	}{Page: 2}

	before, err := c.VersionedKey(ctx, "chats:acme", "chat_list", params)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(before, "v1:chat_list:"))

	require.NoError(t, c.BumpScope(ctx, "chats:acme"))

	after, err := c.VersionedKey(ctx, "chats:acme", "chat_list", params)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(after, "v2:chat_list:"))
	require.NotEqual(t, before, after)
}

func TestBumpNamespacedScope(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCache(t)

	require.NoError(t, c.BumpNamespacedScope(ctx, "chats", "acme"))

	stored, found, err := store.Get(ctx, "v:chats:acme")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "1", stored)
}

// incrFailStore drives the non-numeric fallback in BumpScope.
type incrFailStore struct {
	*MemoryStore
}

func (s *incrFailStore) Incr(ctx context.Context, key string) (int64, error) {
	return 0, errors.New("INCR unsupported here")
}

func TestBumpScopeFallsBackToExplicitSet(t *testing.T) {
	ctx := context.Background()

	store := &incrFailStore{MemoryStore: NewMemoryStore()}
	t.Cleanup(func() { _ = store.Close() })

	logger := logging.NewNopLogger()
	c := New(store, NewLockManager(store, logger), logger)

	require.NoError(t, c.BumpScope(ctx, "fallback"))

	stored, found, err := store.Get(ctx, "v:fallback")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "2", stored)
}

func TestVersionedKeyEncodesParams(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	key, err := c.VersionedKey(ctx, "chats:acme", "chat_list", struct {
		CompanyID string `json:"companyId"`
		Page      int    `json:"page"`
	}{CompanyID: "acme", Page: 3})
	require.NoError(t, err)
	require.Equal(t, `v1:chat_list:{"companyId":"acme","page":3}`, key)
}

func TestGetRoundTripsThroughJSON(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	type chat struct {
		ID     string `json:"id"`
		Unread int    `json:"unread"`
	}

	require.NoError(t, c.Set(ctx, "chat:1", chat{ID: "1", Unread: 4}, time.Minute))

	var out chat
	found, err := c.Get(ctx, "chat:1", &out)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, chat{ID: "1", Unread: 4}, out)

	require.NoError(t, c.Del(ctx, "chat:1"))

	found, err = c.Get(ctx, "chat:1", &out)
	require.NoError(t, err)
	require.False(t, found)
}

func TestWrapReturnsValidJSON(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	raw, err := c.Wrap(ctx, "typed", time.Minute, func(ctx context.Context) (any, error) {
		return []int{1, 2, 3}, nil
	})
	require.NoError(t, err)
	require.True(t, json.Valid(raw))
}
