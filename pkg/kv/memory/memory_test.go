package memory

import (
	"context"
	"testing"
	"time"

	"github.com/postmaster/postmaster-backend/pkg/kv"
	"github.com/postmaster/postmaster-backend/pkg/kv/kvtest"
)

func TestMemoryStore(t *testing.T) {
	factory := func(t *testing.T) kv.Store {
		return New(0) // Disable janitor for deterministic tests
	}

	kvtest.RunConformanceTests(t, factory)
}

func TestMemoryStoreWithJanitor(t *testing.T) {
	store := New(10 * time.Millisecond)
	defer store.Close()

	ctx := context.Background()
	if err := store.Set(ctx, "test:janitor", []byte("test"), 20*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	time.Sleep(60 * time.Millisecond)

	store.mu.Lock()
	_, present := store.entries["test:janitor"]
	store.mu.Unlock()
	if present {
		t.Fatal("Expected janitor to evict expired key")
	}
}

func TestLeaseExpires(t *testing.T) {
	store := New(0)
	defer store.Close()
	ctx := context.Background()

	ok, err := store.SetNX(ctx, "lease:owner", []byte("a"), 20*time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("first SetNX = %v, %v", ok, err)
	}
	if ok, _ := store.SetNX(ctx, "lease:owner", []byte("b"), time.Minute); ok {
		t.Fatal("Expected held lease to block a second holder")
	}

	time.Sleep(40 * time.Millisecond)

	ok, err = store.SetNX(ctx, "lease:owner", []byte("b"), time.Minute)
	if err != nil || !ok {
		t.Fatalf("SetNX after expiry = %v, %v", ok, err)
	}
	if deleted, _ := store.CompareAndDelete(ctx, "lease:owner", []byte("a")); deleted {
		t.Fatal("Expected a stale holder not to release the new lease")
	}
}
