package cache

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const defaultMemoryCleanup = 10 * time.Minute

// MemoryStore keeps entries in process memory. It suits single-instance
// deployments and tests; contents are lost on restart.
type MemoryStore struct {
	items *gocache.Cache
	mu    sync.Mutex
}

// NewMemoryStore creates a memory store that sweeps expired items every
// cleanup interval.
func NewMemoryStore(cleanup time.Duration) *MemoryStore {
	if cleanup <= 0 {
		cleanup = defaultMemoryCleanup
	}
	return &MemoryStore{items: gocache.New(gocache.NoExpiration, cleanup)}
}

// IncrementWithTTL increments a fixed-window counter. The window starts with
// the first increment and is not extended by later ones.
func (s *MemoryStore) IncrementWithTTL(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if value, expiresAt, found := s.items.GetWithExpiration(key); found {
		remaining := expiresAt.Sub(now)
		if current, ok := value.(int64); ok && remaining > 0 {
			current++
			s.items.Set(key, current, remaining)
			return current, remaining, nil
		}
	}

	s.items.Set(key, int64(1), window)
	return 1, window, nil
}

// Set stores a copy of value. A non-positive ttl never expires.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	s.items.Set(key, stored, ttl)
	return nil
}

// Get returns a copy of the stored value.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	value, found := s.items.Get(key)
	if !found {
		return nil, false, nil
	}
	switch v := value.(type) {
	case []byte:
		out := make([]byte, len(v))
		copy(out, v)
		return out, true, nil
	case int64:
		return []byte(strconv.FormatInt(v, 10)), true, nil
	default:
		return nil, false, nil
	}
}

// Delete removes keys from the store.
func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		s.items.Delete(key)
	}
	return nil
}

// DeletePrefix removes every live key starting with prefix.
func (s *MemoryStore) DeletePrefix(_ context.Context, prefix string) (int64, error) {
	var removed int64
	for key := range s.items.Items() {
		if strings.HasPrefix(key, prefix) {
			s.items.Delete(key)
			removed++
		}
	}
	return removed, nil
}

// PurgeExpired drops expired items immediately instead of waiting for the
// janitor.
func (s *MemoryStore) PurgeExpired(context.Context) (int64, error) {
	before := s.items.ItemCount()
	s.items.DeleteExpired()
	return int64(before - s.items.ItemCount()), nil
}

// Len reports the number of stored items, including expired ones not yet swept.
func (s *MemoryStore) Len() int {
	return s.items.ItemCount()
}
