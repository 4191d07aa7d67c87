package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/postmaster/postmaster-backend/pkg/kv"
	"github.com/postmaster/postmaster-backend/pkg/kv/kvtest"
	"github.com/redis/go-redis/v9"
)

// fakeClockStore marks stores whose TTLs only advance through miniredis.FastForward.
type fakeClockStore struct {
	*Store
}

func (fakeClockStore) FakeClock() {}

func TestRedisStore(t *testing.T) {
	factory := func(t *testing.T) kv.Store {
		mr := miniredis.RunT(t)
		store, err := New(mr.Addr())
		if err != nil {
			t.Fatalf("Failed to create Redis store: %v", err)
		}
		return fakeClockStore{store}
	}

	kvtest.RunConformanceTests(t, factory)
}

func TestRedisStoreTTLWithFastForward(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer store.Close()

	ctx := context.Background()
	ok, err := store.SetNX(ctx, "lease", []byte("a"), time.Minute)
	if err != nil || !ok {
		t.Fatalf("SetNX failed: ok=%v err=%v", ok, err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := store.Get(ctx, "lease"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("Expected expired lease, got %v", err)
	}
}

func TestNewUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(addr)
	if err == nil {
		t.Fatal("Expected error for unreachable redis")
	}
	if !errors.Is(err, kv.ErrBackendUnavailable) {
		t.Fatalf("Expected ErrBackendUnavailable, got %v", err)
	}
}

func TestParseOptions(t *testing.T) {
	opt, err := ParseOptions("127.0.0.1:6379")
	if err != nil {
		t.Fatalf("ParseOptions failed: %v", err)
	}
	if opt.Addr != "127.0.0.1:6379" {
		t.Fatalf("Unexpected addr %q", opt.Addr)
	}

	opt, err = ParseOptions("redis://:secret@cache:6380/2")
	if err != nil {
		t.Fatalf("ParseOptions failed: %v", err)
	}
	if opt.Addr != "cache:6380" || opt.DB != 2 || opt.Password != "secret" {
		t.Fatalf("Unexpected options %+v", opt)
	}
}
