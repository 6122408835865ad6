package memory

import (
	"context"
	"testing"
	"time"

	"github.com/mailwebhook/mcp-gateway-go/storage"
)

func TestSetGetDelete(t *testing.T) {
	s, err := New(16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	if err := s.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	item, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item == nil || string(item.Data) != "v" {
		t.Fatalf("expected stored value, got %+v", item)
	}
	if item.ExpiresAt != nil {
		t.Fatal("item without TTL should not expire")
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	item, err = s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get after delete: %v", err)
	}
	if item != nil {
		t.Fatalf("expected miss after delete, got %+v", item)
	}
}

func TestMissReturnsNilNil(t *testing.T) {
	s, err := New(16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	item, err := s.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item != nil {
		t.Fatalf("expected nil item on miss, got %+v", item)
	}
}

func TestTTLExpiry(t *testing.T) {
	s, err := New(16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	if err := s.Set(ctx, "k", []byte("v"), storage.WithTTL(50*time.Millisecond)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	item, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item == nil {
		t.Fatal("expected hit before TTL elapses")
	}

	time.Sleep(80 * time.Millisecond)

	item, err = s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item != nil {
		t.Fatalf("expected lazy expiry after TTL, got %+v", item)
	}
}

func TestSetCopiesData(t *testing.T) {
	s, err := New(16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	buf := []byte("original")
	if err := s.Set(ctx, "k", buf); err != nil {
		t.Fatalf("Set: %v", err)
	}
	copy(buf, "mutated!")

	item, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(item.Data) != "original" {
		t.Fatalf("stored data aliases caller buffer: %q", item.Data)
	}
}

func TestBoundedEviction(t *testing.T) {
	s, err := New(2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		if err := s.Set(ctx, key, []byte(key)); err != nil {
			t.Fatalf("Set %s: %v", key, err)
		}
	}

	// LRU bound of 2: "a" was evicted by "c".
	item, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item != nil {
		t.Fatal("oldest entry should have been evicted")
	}
	for _, key := range []string{"b", "c"} {
		item, err := s.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get %s: %v", key, err)
		}
		if item == nil {
			t.Fatalf("expected %s to survive", key)
		}
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s, err := New(4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
