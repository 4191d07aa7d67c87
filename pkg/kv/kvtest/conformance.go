// Package kvtest provides conformance tests for kv.Store implementations
package kvtest

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/postmaster/postmaster-backend/pkg/kv"
)

// StoreFactory creates a fresh Store instance for testing
type StoreFactory func(t *testing.T) kv.Store

// RunConformanceTests runs all conformance tests against a Store implementation
func RunConformanceTests(t *testing.T, factory StoreFactory) {
	tests := []struct {
		name string
		test func(t *testing.T, store kv.Store)
	}{
		{"SetGet", testSetGet},
		{"GetNonExistent", testGetNonExistent},
		{"Overwrite", testOverwrite},
		{"TTLExpiry", testTTLExpiry},
		{"SetNX", testSetNX},
		{"SetNXAfterExpiry", testSetNXAfterExpiry},
		{"CompareAndDelete", testCompareAndDelete},
		{"DelExists", testDelExists},
		{"Ping", testPing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := factory(t)
			defer store.Close()
			tt.test(t, store)
		})
	}
}

func testSetGet(t *testing.T, store kv.Store) {
	ctx := context.Background()
	value := []byte("hello world")

	if err := store.Set(ctx, "test:string", value, 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	result, err := store.Get(ctx, "test:string")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !reflect.DeepEqual(result, value) {
		t.Fatalf("Expected %q, got %q", value, result)
	}
}

func testGetNonExistent(t *testing.T, store kv.Store) {
	_, err := store.Get(context.Background(), "test:nonexistent")
	if !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func testOverwrite(t *testing.T, store kv.Store) {
	ctx := context.Background()
	_ = store.Set(ctx, "test:overwrite", []byte("one"), 0)
	_ = store.Set(ctx, "test:overwrite", []byte("two"), 0)

	result, err := store.Get(ctx, "test:overwrite")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(result) != "two" {
		t.Fatalf("Expected overwritten value, got %q", result)
	}
}

// testTTLExpiry uses a wall-clock sleep. Stores driven by a fake clock (such
// as miniredis) should fast-forward in their own tests instead.
func testTTLExpiry(t *testing.T, store kv.Store) {
	if _, fake := store.(interface{ FakeClock() }); fake {
		t.Skip("store uses a fake clock")
	}
	ctx := context.Background()
	if err := store.Set(ctx, "test:ttl", []byte("x"), 50*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(120 * time.Millisecond)

	if _, err := store.Get(ctx, "test:ttl"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("Expected key to expire, got %v", err)
	}
}

func testSetNX(t *testing.T, store kv.Store) {
	ctx := context.Background()

	ok, err := store.SetNX(ctx, "test:lease", []byte("a"), time.Minute)
	if err != nil || !ok {
		t.Fatalf("Expected first SetNX to win, ok=%v err=%v", ok, err)
	}

	ok, err = store.SetNX(ctx, "test:lease", []byte("b"), time.Minute)
	if err != nil {
		t.Fatalf("SetNX failed: %v", err)
	}
	if ok {
		t.Fatal("Expected second SetNX to lose")
	}

	result, _ := store.Get(ctx, "test:lease")
	if string(result) != "a" {
		t.Fatalf("Expected holder value 'a', got %q", result)
	}
}

func testSetNXAfterExpiry(t *testing.T, store kv.Store) {
	if _, fake := store.(interface{ FakeClock() }); fake {
		t.Skip("store uses a fake clock")
	}
	ctx := context.Background()
	_, _ = store.SetNX(ctx, "test:lease:ttl", []byte("a"), 50*time.Millisecond)
	time.Sleep(120 * time.Millisecond)

	ok, err := store.SetNX(ctx, "test:lease:ttl", []byte("b"), time.Minute)
	if err != nil || !ok {
		t.Fatalf("Expected SetNX to win after expiry, ok=%v err=%v", ok, err)
	}
}

func testCompareAndDelete(t *testing.T, store kv.Store) {
	ctx := context.Background()
	_ = store.Set(ctx, "test:cad", []byte("owner-1"), time.Minute)

	ok, err := store.CompareAndDelete(ctx, "test:cad", []byte("owner-2"))
	if err != nil {
		t.Fatalf("CompareAndDelete failed: %v", err)
	}
	if ok {
		t.Fatal("Expected mismatched CompareAndDelete to be a no-op")
	}

	ok, err = store.CompareAndDelete(ctx, "test:cad", []byte("owner-1"))
	if err != nil || !ok {
		t.Fatalf("Expected matching CompareAndDelete to delete, ok=%v err=%v", ok, err)
	}

	if _, err := store.Get(ctx, "test:cad"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("Expected key to be gone, got %v", err)
	}
}

func testDelExists(t *testing.T, store kv.Store) {
	ctx := context.Background()
	_ = store.Set(ctx, "test:a", []byte("1"), 0)
	_ = store.Set(ctx, "test:b", []byte("2"), 0)

	n, err := store.Exists(ctx, "test:a", "test:b", "test:c")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("Expected 2 existing keys, got %d", n)
	}

	deleted, err := store.Del(ctx, "test:a", "test:c")
	if err != nil {
		t.Fatalf("Del failed: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("Expected 1 deleted key, got %d", deleted)
	}
}

func testPing(t *testing.T, store kv.Store) {
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}
