// Package redis provides a Redis-backed implementation of the storage.Store
// interface so multiple gateway instances can share one cache.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mailwebhook/mcp-gateway-go/storage"
	"github.com/redis/go-redis/v9"
)

// Config contains configuration options for the Redis store.
type Config struct {
	// Client is the Redis client instance.
	Client *redis.Client

	// KeyPrefix is the prefix for all Redis keys.
	// Default: "mailmcp:storage:".
	KeyPrefix string
}

// Store implements the storage.Store interface using Redis.
type Store struct {
	client    *redis.Client
	keyPrefix string
}

// storedItem is the JSON shape persisted in Redis.
type storedItem struct {
	Data      []byte     `json:"data"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// New creates a Redis-backed store.
func New(config Config) (*Store, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = "mailmcp:storage:"
	}

	return &Store{
		client:    config.Client,
		keyPrefix: config.KeyPrefix,
	}, nil
}

// Get retrieves the item stored under key. Redis enforces TTL natively, but
// the expiry check is repeated here so mixed-backend behavior is identical.
func (s *Store) Get(ctx context.Context, key string) (*storage.Item, error) {
	redisKey := s.keyPrefix + key

	result := s.client.Get(ctx, redisKey)
	if result.Err() != nil {
		if result.Err() == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get key %s: %w", redisKey, result.Err())
	}

	var item storedItem
	if err := json.Unmarshal([]byte(result.Val()), &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stored data: %w", err)
	}

	storageItem := &storage.Item{
		Data:      item.Data,
		CreatedAt: item.CreatedAt,
		ExpiresAt: item.ExpiresAt,
	}

	if storageItem.IsExpired() {
		s.client.Del(ctx, redisKey)
		return nil, nil
	}

	return storageItem, nil
}

// Set stores data under key, delegating TTL enforcement to Redis as well.
func (s *Store) Set(ctx context.Context, key string, data []byte, opts ...storage.Option) error {
	options := &storage.Options{}
	for _, opt := range opts {
		opt(options)
	}

	redisKey := s.keyPrefix + key

	now := time.Now()
	item := storedItem{
		Data:      data,
		CreatedAt: now,
	}

	var redisTTL time.Duration
	if options.TTL != nil {
		expiresAt := now.Add(*options.TTL)
		item.ExpiresAt = &expiresAt
		redisTTL = *options.TTL
	}

	itemData, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal storage item: %w", err)
	}

	result := s.client.Set(ctx, redisKey, itemData, redisTTL)
	if result.Err() != nil {
		return fmt.Errorf("failed to set key %s: %w", redisKey, result.Err())
	}

	return nil
}

// Delete removes the entry under key.
func (s *Store) Delete(ctx context.Context, key string) error {
	result := s.client.Del(ctx, s.keyPrefix+key)
	if result.Err() != nil {
		return fmt.Errorf("failed to delete key %s: %w", s.keyPrefix+key, result.Err())
	}
	return nil
}

// Close closes the underlying Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

var _ storage.Store = (*Store)(nil)
