package state

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryStore implements [Store] with ttlcache. It is local to one process.
type MemoryStore struct {
	cache *ttlcache.Cache[string, string]
}

// NewMemory creates an in-memory store whose entries default to ttl and are swept in the background.
func NewMemory(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	cache := ttlcache.New(
		ttlcache.WithTTL[string, string](ttl),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)

	go cache.Start()

	return &MemoryStore{cache: cache}
}

// Put maps token to deviceID. A non-positive ttl uses the store default.
func (s *MemoryStore) Put(_ context.Context, token, deviceID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = ttlcache.DefaultTTL
	}
	s.cache.Set(token, deviceID, ttl)
	return nil
}

// Resolve returns the device id for token without removing the entry.
func (s *MemoryStore) Resolve(_ context.Context, token string) (string, error) {
	item := s.cache.Get(token)
	if item == nil || item.IsExpired() {
		return "", ErrNotFound
	}
	return item.Value(), nil
}

// Len reports the number of live entries.
func (s *MemoryStore) Len() int {
	return s.cache.Len()
}

// Close stops the background sweeper.
func (s *MemoryStore) Close() error {
	s.cache.Stop()
	return nil
}
