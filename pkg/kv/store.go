package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is not found
var ErrNotFound = errors.New("not found")

// ErrBackendUnavailable is returned when the backend storage is unavailable
var ErrBackendUnavailable = errors.New("backend unavailable")

// Store is the small slice of Redis semantics the service relies on: JSON
// blobs with TTL for caching, and SETNX/compare-and-delete for leases.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)

	// SetNX stores value only if key is absent. It reports whether the write happened.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// CompareAndDelete removes key only while it still holds value.
	CompareAndDelete(ctx context.Context, key string, value []byte) (bool, error)

	Del(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, keys ...string) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}
