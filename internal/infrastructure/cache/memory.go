package cache

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"sync"
	"time"
)

type memoryItem struct {
	value      string
	expiration int64
}

func (item memoryItem) isExpired() bool {
	if item.expiration == 0 {
		return false
	}
	return time.Now().UnixNano() > item.expiration
}

// MemoryStore is an in-process Store used by tests and local setups without
// a Redis instance. Expired items are dropped lazily on read and swept by a
// background cleanup timer.
type MemoryStore struct {
	items           map[string]memoryItem
	mu              sync.RWMutex
	cleanupInterval time.Duration
	stopCleanup     chan bool
	stopOnce        sync.Once
}

func NewMemoryStore() *MemoryStore {
	store := &MemoryStore{
		items:           make(map[string]memoryItem),
		cleanupInterval: 5 * time.Minute,
		stopCleanup:     make(chan bool),
	}

	go store.startCleanupTimer()

	return store
}

func (s *MemoryStore) startCleanupTimer() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixNano()
	for key, item := range s.items {
		if item.expiration > 0 && now > item.expiration {
			delete(s.items, key)
		}
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, found := s.items[key]
	if !found {
		return "", false, nil
	}

	if item.isExpired() {
		delete(s.items, key)
		return "", false, nil
	}

	return item.value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[key] = memoryItem{value: value, expiration: expirationFor(ttl)}
	return nil
}

func (s *MemoryStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item, found := s.items[key]; found && !item.isExpired() {
		return false, nil
	}

	s.items[key] = memoryItem{value: value, expiration: expirationFor(ttl)}
	return true, nil
}

func (s *MemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.items, key)
	}
	return nil
}

func (s *MemoryStore) DelPattern(_ context.Context, pattern string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.items {
		matched, err := path.Match(pattern, key)
		if err != nil {
			return err
		}
		if matched {
			delete(s.items, key)
		}
	}
	return nil
}

func (s *MemoryStore) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, found := s.items[key]
	if !found || item.isExpired() {
		s.items[key] = memoryItem{value: "1"}
		return 1, nil
	}

	n, err := strconv.ParseInt(item.value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("value at %s is not an integer", key)
	}

	n++
	item.value = strconv.FormatInt(n, 10)
	s.items[key] = item
	return n, nil
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, found := s.items[key]
	if !found || item.isExpired() {
		return nil
	}

	item.expiration = expirationFor(ttl)
	s.items[key] = item
	return nil
}

func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
	return nil
}

// TTL reports the remaining lifetime of a key, for tests asserting jitter
// bounds. Zero means no expiration is set.
func (s *MemoryStore) TTL(key string) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, found := s.items[key]
	if !found || item.expiration == 0 {
		return 0
	}
	return time.Until(time.Unix(0, item.expiration))
}

func expirationFor(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return time.Now().Add(ttl).UnixNano()
}
