package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// CacheEntry is one value held by the MemoryStore
type CacheEntry struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	CachedAt  time.Time `json:"cached_at"`
	ExpiresAt time.Time `json:"expires_at"`
	HitCount  int       `json:"hit_count"`
}

func (e CacheEntry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// MemoryStore is an in-process Store with a size bound and a background sweeper
type MemoryStore struct {
	entries   map[string]CacheEntry
	mutex     sync.RWMutex
	maxSize   int
	hitCount  int64
	missCount int64
	evictions int64
	stopChan  chan struct{}
	stopOnce  sync.Once
	now       func() time.Time
}

// NewMemoryStore creates a store holding at most maxSize entries.
// A non-positive cleanupInterval disables the sweeper; expired entries are still never returned.
func NewMemoryStore(maxSize int, cleanupInterval time.Duration) *MemoryStore {
	store := &MemoryStore{
		entries:  make(map[string]CacheEntry),
		maxSize:  maxSize,
		stopChan: make(chan struct{}),
		now:      time.Now,
	}

	if cleanupInterval > 0 {
		go store.cleanup(cleanupInterval)
	}

	return store
}

// Name implements Store
func (s *MemoryStore) Name() string {
	return "memory"
}

// Get implements Store
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entry, exists := s.entries[key]
	if !exists || entry.expired(s.now()) {
		if exists {
			delete(s.entries, key)
		}
		s.missCount++
		return nil, false, nil
	}

	entry.HitCount++
	s.entries[key] = entry
	s.hitCount++

	return entry.Value, true, nil
}

// Set implements Store
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.maxSize <= 0 {
		return nil
	}

	if _, exists := s.entries[key]; !exists && len(s.entries) >= s.maxSize {
		s.evictOldest()
	}

	now := s.now()
	entry := CacheEntry{
		Key:      key,
		Value:    append([]byte(nil), value...),
		CachedAt: now,
	}
	if ttl > 0 {
		entry.ExpiresAt = now.Add(ttl)
	}
	s.entries[key] = entry

	return nil
}

// Delete implements Store
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.entries, key)
	return nil
}

// DeletePrefix implements Store
func (s *MemoryStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	removed := 0
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Clear implements Store
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.entries = make(map[string]CacheEntry)
	return nil
}

// Ping implements Store
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Entry returns a copy of the stored entry, expired or not
func (s *MemoryStore) Entry(key string) (CacheEntry, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	entry, ok := s.entries[key]
	return entry, ok
}

// GetStats returns cache statistics
func (s *MemoryStore) GetStats() map[string]interface{} {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	totalRequests := s.hitCount + s.missCount
	hitRatio := float64(0)
	if totalRequests > 0 {
		hitRatio = float64(s.hitCount) / float64(totalRequests)
	}

	return map[string]interface{}{
		"entries":    len(s.entries),
		"max_size":   s.maxSize,
		"hit_count":  s.hitCount,
		"miss_count": s.missCount,
		"hit_ratio":  hitRatio,
		"evictions":  s.evictions,
	}
}

func (s *MemoryStore) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range s.entries {
		if oldestKey == "" || entry.CachedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.CachedAt
		}
	}

	if oldestKey != "" {
		delete(s.entries, oldestKey)
		s.evictions++
	}
}

// Close stops the sweeper. It is safe to call more than once.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	return nil
}

// sweep drops every expired entry
func (s *MemoryStore) sweep() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.now()
	removed := 0
	for key, entry := range s.entries {
		if entry.expired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopChan:
			return
		}
	}
}
