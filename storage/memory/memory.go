// Package memory provides an in-memory implementation of the storage.Store
// interface using github.com/hashicorp/golang-lru/v2 for bounded caching
// with TTL support.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mailwebhook/mcp-gateway-go/storage"
)

const defaultSweepInterval = 5 * time.Minute

// Store implements storage.Store backed by a bounded LRU cache. Expired
// entries are purged lazily on read and by a periodic background sweep.
type Store struct {
	mu    sync.RWMutex
	cache *lru.Cache[string, *storage.Item]
	stop  chan struct{}
	once  sync.Once
}

// New creates an in-memory store holding at most maxItems entries.
func New(maxItems int) (*Store, error) {
	cache, err := lru.New[string, *storage.Item](maxItems)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}

	s := &Store{
		cache: cache,
		stop:  make(chan struct{}),
	}

	go s.sweepExpired(defaultSweepInterval)

	return s, nil
}

// Get retrieves the item stored under key, purging it if expired.
func (s *Store) Get(ctx context.Context, key string) (*storage.Item, error) {
	s.mu.RLock()
	item, exists := s.cache.Get(key)
	s.mu.RUnlock()

	if !exists {
		return nil, nil
	}

	if item.IsExpired() {
		s.mu.Lock()
		s.cache.Remove(key)
		s.mu.Unlock()
		return nil, nil
	}

	return item, nil
}

// Set stores data under key.
func (s *Store) Set(ctx context.Context, key string, data []byte, opts ...storage.Option) error {
	options := &storage.Options{}
	for _, opt := range opts {
		opt(options)
	}

	now := time.Now()
	item := &storage.Item{
		Data:      make([]byte, len(data)),
		CreatedAt: now,
	}
	copy(item.Data, data)

	if options.TTL != nil {
		expiresAt := now.Add(*options.TTL)
		item.ExpiresAt = &expiresAt
	}

	s.mu.Lock()
	s.cache.Add(key, item)
	s.mu.Unlock()

	return nil
}

// Delete removes the entry under key.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	s.cache.Remove(key)
	s.mu.Unlock()
	return nil
}

// Close stops the background sweep and drops all entries.
func (s *Store) Close() error {
	s.once.Do(func() { close(s.stop) })
	s.mu.Lock()
	s.cache.Purge()
	s.mu.Unlock()
	return nil
}

// sweepExpired periodically removes entries whose TTL has elapsed so the LRU
// does not carry dead weight between reads.
func (s *Store) sweepExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		now := time.Now()
		for _, key := range s.cache.Keys() {
			if item, exists := s.cache.Peek(key); exists {
				if item.ExpiresAt != nil && now.After(*item.ExpiresAt) {
					s.cache.Remove(key)
				}
			}
		}
		s.mu.Unlock()
	}
}

var _ storage.Store = (*Store)(nil)
