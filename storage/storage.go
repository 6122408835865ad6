// Package storage defines the key-value substrate underneath the gateway's
// cache: flat string keys, opaque byte payloads, and per-entry TTLs.
// Backends are expected to treat an expired entry exactly like an absent
// one, purging it on read rather than serving it.
package storage

import (
	"context"
	"time"
)

// Store is the primary storage contract.
type Store interface {
	// Get retrieves the item stored under key. It returns (nil, nil) when
	// the key is absent or expired; errors are reserved for genuine backend
	// failures.
	Get(ctx context.Context, key string) (*Item, error)

	// Set stores data under key, replacing any prior entry.
	Set(ctx context.Context, key string, data []byte, opts ...Option) error

	// Delete removes the entry under key. Deleting an absent key is not an
	// error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Item is a stored payload with its freshness metadata.
type Item struct {
	Data      []byte
	CreatedAt time.Time
	ExpiresAt *time.Time // nil = no expiration
}

// IsExpired reports whether the item is past its expiry.
func (it *Item) IsExpired() bool {
	return it.ExpiresAt != nil && time.Now().After(*it.ExpiresAt)
}

// Option configures a Set operation.
type Option func(*Options)

// Options holds the resolved Set configuration.
type Options struct {
	TTL *time.Duration
}

// WithTTL sets a time-to-live for the stored data.
func WithTTL(ttl time.Duration) Option {
	return func(opts *Options) {
		opts.TTL = &ttl
	}
}
