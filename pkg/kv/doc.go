// Package kv provides a minimal Redis-like key-value store abstraction with
// in-memory and Redis-backed implementations.
//
// The store backs two things in the service: the JSON response cache used by
// the dashboard, and short-lived leases that keep two sweeper instances from
// working the same owner at the same time.
//
//	store := memory.New(30 * time.Second)
//	defer store.Close()
//
//	ok, err := store.SetNX(ctx, "lease:owner-1", []byte(token), time.Minute)
//
// The in-memory implementation is a first-class option for development and
// tests; it honors TTLs lazily on read and eagerly through a janitor.
package kv
