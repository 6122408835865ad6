package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mailwebhook/mcp-gateway-go/storage"
	"github.com/mailwebhook/mcp-gateway-go/storage/memory"
)

func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	store, err := memory.New(64)
	if err != nil {
		t.Fatalf("memory.New: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store, opts...)
}

func TestKeyNamespacing(t *testing.T) {
	m := newTestManager(t)

	key := m.Key("templates:all", nil)
	if key != "mailmcp:v1:templates:all" {
		t.Fatalf("unexpected key: %s", key)
	}

	custom := newTestManager(t, WithPrefix("other"), WithVersion("v2"))
	if got := custom.Key("x", nil); got != "other:v2:x" {
		t.Fatalf("unexpected key: %s", got)
	}
}

func TestKeyVariantHeaders(t *testing.T) {
	m := newTestManager(t)

	withVariant := m.Key("status", map[string]string{"Accept-Language": "de", "X-Tenant": "a"})
	base := m.Key("status", nil)

	if !strings.HasPrefix(withVariant, base+":") {
		t.Fatalf("variant key should extend the base key: %s", withVariant)
	}
	suffix := strings.TrimPrefix(withVariant, base+":")
	if len(suffix) != 8 {
		t.Fatalf("expected 8-hex-digit hash suffix, got %q", suffix)
	}

	// Same headers in different construction order hash identically.
	again := m.Key("status", map[string]string{"X-Tenant": "a", "Accept-Language": "de"})
	if again != withVariant {
		t.Fatalf("hash not order-independent: %s vs %s", again, withVariant)
	}

	// Different header values hash differently.
	other := m.Key("status", map[string]string{"Accept-Language": "de", "X-Tenant": "b"})
	if other == withVariant {
		t.Fatal("different variant values should yield different keys")
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	m.Set(ctx, "greeting", map[string]string{"msg": "hello"}, time.Minute)

	var out map[string]string
	if !m.GetJSON(ctx, "greeting", &out) {
		t.Fatal("expected hit")
	}
	if out["msg"] != "hello" {
		t.Fatalf("unexpected payload: %+v", out)
	}
}

func TestGetMissesAfterMaxAge(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	m.Set(ctx, "short", "value", 100*time.Millisecond)

	if _, ok := m.Get(ctx, "short"); !ok {
		t.Fatal("expected hit before max-age")
	}

	time.Sleep(150 * time.Millisecond)

	if _, ok := m.Get(ctx, "short"); ok {
		t.Fatal("expected miss after max-age")
	}
}

func TestGetOrSet(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	calls := 0
	fetch := func(ctx context.Context) (any, error) {
		calls++
		return map[string]int{"n": calls}, nil
	}

	payload, err := m.GetOrSet(ctx, "computed", time.Minute, fetch)
	if err != nil {
		t.Fatalf("GetOrSet: %v", err)
	}
	if string(payload) != `{"n":1}` {
		t.Fatalf("unexpected payload: %s", payload)
	}

	// Second call inside the TTL is served from cache.
	payload, err = m.GetOrSet(ctx, "computed", time.Minute, fetch)
	if err != nil {
		t.Fatalf("GetOrSet: %v", err)
	}
	if string(payload) != `{"n":1}` {
		t.Fatalf("expected cached payload, got %s", payload)
	}
	if calls != 1 {
		t.Fatalf("expected a single fetch, got %d", calls)
	}
}

func TestGetOrSetSurfacesFetchError(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	wantErr := errors.New("backend down")
	if _, err := m.GetOrSet(ctx, "failing", time.Minute, func(ctx context.Context) (any, error) {
		return nil, wantErr
	}); !errors.Is(err, wantErr) {
		t.Fatalf("expected fetch error, got %v", err)
	}

	// The failure was not cached.
	if _, ok := m.Get(ctx, "failing"); ok {
		t.Fatal("failed fetch must not populate the cache")
	}
}

func TestDelete(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	m.Set(ctx, "k", "v", time.Minute)
	m.Delete(ctx, "k")
	if _, ok := m.Get(ctx, "k"); ok {
		t.Fatal("expected miss after delete")
	}
}

// brokenStore fails every operation so soft-fail behavior can be observed.
type brokenStore struct{}

func (brokenStore) Get(ctx context.Context, key string) (*storage.Item, error) {
	return nil, errors.New("store unavailable")
}
func (brokenStore) Set(ctx context.Context, key string, data []byte, opts ...storage.Option) error {
	return errors.New("store unavailable")
}
func (brokenStore) Delete(ctx context.Context, key string) error {
	return errors.New("store unavailable")
}
func (brokenStore) Close() error { return nil }

func TestBrokenStoreDegradesToMiss(t *testing.T) {
	m := New(brokenStore{})
	ctx := context.Background()

	if _, ok := m.Get(ctx, "k"); ok {
		t.Fatal("broken store must read as a miss")
	}

	// Set and Delete are silent no-ops.
	m.Set(ctx, "k", "v", time.Minute)
	m.Delete(ctx, "k")

	// GetOrSet still produces the fetched value.
	payload, err := m.GetOrSet(ctx, "k", time.Minute, func(ctx context.Context) (any, error) {
		return "fresh", nil
	})
	if err != nil {
		t.Fatalf("GetOrSet over broken store: %v", err)
	}
	if string(payload) != `"fresh"` {
		t.Fatalf("unexpected payload: %s", payload)
	}
}
