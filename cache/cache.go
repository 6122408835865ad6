// Package cache implements the gateway's namespaced get-or-set cache. It
// wraps a storage.Store with versioned key construction, an age-checked
// entry envelope, and soft-fail semantics: a broken cache degrades to a
// cache miss, never to a failed request.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"time"

	"github.com/mailwebhook/mcp-gateway-go/storage"
)

const (
	defaultPrefix  = "mailmcp"
	defaultVersion = "v1"
	defaultTTL     = 5 * time.Minute
)

// Manager is the namespaced cache facade.
type Manager struct {
	store      storage.Store
	prefix     string
	version    string
	defaultTTL time.Duration
	log        *slog.Logger
}

// entry is the envelope persisted for every cached value. StoredAt plus
// MaxAge decide freshness independently of the backend's own TTL handling;
// StaleWhileRevalidate is advisory metadata only and is never acted on here.
type entry struct {
	Payload              json.RawMessage `json:"payload"`
	StoredAt             time.Time       `json:"storedAt"`
	MaxAgeMS             int64           `json:"maxAgeMs"`
	StaleWhileRevalidate int64           `json:"swrMs,omitempty"`
}

// Option configures the Manager.
type Option func(*Manager)

// WithPrefix overrides the key namespace prefix.
func WithPrefix(prefix string) Option {
	return func(m *Manager) { m.prefix = prefix }
}

// WithVersion overrides the key namespace version segment. Bumping it
// invalidates every previously written entry at once.
func WithVersion(version string) Option {
	return func(m *Manager) { m.version = version }
}

// WithDefaultTTL sets the TTL used when a caller passes ttl <= 0.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.defaultTTL = ttl }
}

// WithLogger sets the logger used for soft-fail reporting.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// New constructs a Manager over the given store.
func New(store storage.Store, opts ...Option) *Manager {
	m := &Manager{
		store:      store,
		prefix:     defaultPrefix,
		version:    defaultVersion,
		defaultTTL: defaultTTL,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Key builds the full namespaced cache key: prefix:version:key, with an
// optional trailing 8-hex-digit hash of the variant headers when any are
// supplied.
func (m *Manager) Key(key string, variantHeaders map[string]string) string {
	full := fmt.Sprintf("%s:%s:%s", m.prefix, m.version, key)
	if len(variantHeaders) == 0 {
		return full
	}

	names := make([]string, 0, len(variantHeaders))
	for name := range variantHeaders {
		names = append(names, name)
	}
	sort.Strings(names)

	h := fnv.New32a()
	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write([]byte(variantHeaders[name]))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%s:%08x", full, h.Sum32())
}

// Get returns the cached payload for key and whether it was a fresh hit. An
// entry older than its max-age is deleted and reported as a miss. Backend
// errors degrade to a miss.
func (m *Manager) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	fullKey := m.Key(key, nil)

	item, err := m.store.Get(ctx, fullKey)
	if err != nil {
		m.log.WarnContext(ctx, "cache.get.fail", slog.String("key", fullKey), slog.String("err", err.Error()))
		return nil, false
	}
	if item == nil {
		return nil, false
	}

	var ent entry
	if err := json.Unmarshal(item.Data, &ent); err != nil {
		m.log.WarnContext(ctx, "cache.entry.corrupt", slog.String("key", fullKey), slog.String("err", err.Error()))
		m.deleteRaw(ctx, fullKey)
		return nil, false
	}

	age := time.Since(ent.StoredAt)
	if age > time.Duration(ent.MaxAgeMS)*time.Millisecond {
		m.deleteRaw(ctx, fullKey)
		return nil, false
	}

	return ent.Payload, true
}

// GetJSON is Get plus unmarshaling into out. A payload that no longer
// unmarshals is treated as a miss.
func (m *Manager) GetJSON(ctx context.Context, key string, out any) bool {
	payload, ok := m.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(payload, out); err != nil {
		m.log.WarnContext(ctx, "cache.payload.corrupt", slog.String("key", key), slog.String("err", err.Error()))
		return false
	}
	return true
}

// SetOption configures a single Set call.
type SetOption func(*setConfig)

type setConfig struct {
	swr time.Duration
}

// WithStaleWhileRevalidate annotates the entry with an advisory
// stale-while-revalidate window. The manager itself never serves stale data
// nor revalidates in the background.
func WithStaleWhileRevalidate(d time.Duration) SetOption {
	return func(c *setConfig) { c.swr = d }
}

// Set caches value under key for ttl (the default TTL when ttl <= 0).
// Backend errors degrade to a no-op.
func (m *Manager) Set(ctx context.Context, key string, value any, ttl time.Duration, opts ...SetOption) {
	cfg := setConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	payload, err := json.Marshal(value)
	if err != nil {
		m.log.WarnContext(ctx, "cache.set.marshal.fail", slog.String("key", key), slog.String("err", err.Error()))
		return
	}

	ent := entry{
		Payload:              payload,
		StoredAt:             time.Now(),
		MaxAgeMS:             ttl.Milliseconds(),
		StaleWhileRevalidate: cfg.swr.Milliseconds(),
	}
	data, err := json.Marshal(ent)
	if err != nil {
		m.log.WarnContext(ctx, "cache.set.marshal.fail", slog.String("key", key), slog.String("err", err.Error()))
		return
	}

	fullKey := m.Key(key, nil)
	// Keep the backend entry alive slightly past max-age so the manager's
	// own freshness check is authoritative for the whole window.
	if err := m.store.Set(ctx, fullKey, data, storage.WithTTL(ttl+time.Second)); err != nil {
		m.log.WarnContext(ctx, "cache.set.fail", slog.String("key", fullKey), slog.String("err", err.Error()))
	}
}

// GetOrSet returns the cached payload for key or, on a miss, invokes fetch,
// caches its result for ttl and returns it. De-duplication is best-effort
// only: two genuinely concurrent misses may both invoke fetch. The only
// error surfaced is fetch's own.
func (m *Manager) GetOrSet(ctx context.Context, key string, ttl time.Duration, fetch func(ctx context.Context) (any, error)) (json.RawMessage, error) {
	if payload, ok := m.Get(ctx, key); ok {
		return payload, nil
	}

	value, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	m.Set(ctx, key, value, ttl)

	payload, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal fetched value: %w", err)
	}
	return payload, nil
}

// Delete removes the entry under key. Backend errors degrade to a no-op.
func (m *Manager) Delete(ctx context.Context, key string) {
	m.deleteRaw(ctx, m.Key(key, nil))
}

func (m *Manager) deleteRaw(ctx context.Context, fullKey string) {
	if err := m.store.Delete(ctx, fullKey); err != nil {
		m.log.WarnContext(ctx, "cache.delete.fail", slog.String("key", fullKey), slog.String("err", err.Error()))
	}
}
