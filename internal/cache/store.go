package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Store is a string key-value backend with per-entry TTL. A miss is
// reported through the boolean; a non-nil error means the backend itself
// failed. A ttl of zero or less stores the entry without expiry.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// evictionCounter is implemented by stores that track how many expired
// entries they have dropped.
type evictionCounter interface {
	Evictions() int64
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore keeps entries in process memory. TTL is enforced at read
// time; expired entries are evicted lazily when a Get touches them.
type MemoryStore struct {
	mu        sync.RWMutex
	entries   map[string]memoryEntry
	evictions atomic.Int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if e.expiresAt.IsZero() || time.Now().Before(e.expiresAt) {
		return e.value, true, nil
	}
	s.mu.Lock()
	// Re-check under the write lock; a concurrent Set may have replaced
	// the entry with a fresh one since the read.
	if cur, ok := s.entries[key]; ok && !cur.expiresAt.IsZero() && !time.Now().Before(cur.expiresAt) {
		delete(s.entries, key)
		s.evictions.Add(1)
	}
	s.mu.Unlock()
	return "", false, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.entries = make(map[string]memoryEntry)
	s.mu.Unlock()
	return nil
}

// Len reports the number of entries currently held, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Evictions reports how many expired entries Get has dropped.
func (s *MemoryStore) Evictions() int64 {
	return s.evictions.Load()
}
