package memory

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/postmaster/postmaster-backend/pkg/kv"
)

type entry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Store is an in-memory implementation of the kv.Store interface
type Store struct {
	mu      sync.Mutex
	entries map[string]entry

	janitorInterval time.Duration
	janitorStop     chan struct{}
	janitorDone     chan struct{}
	closeOnce       sync.Once
}

var _ kv.Store = (*Store)(nil)

// New creates a new in-memory store. A zero janitorInterval disables the
// background sweep; expired keys are then only dropped when touched.
func New(janitorInterval time.Duration) *Store {
	s := &Store{
		entries:         make(map[string]entry),
		janitorInterval: janitorInterval,
		janitorStop:     make(chan struct{}),
		janitorDone:     make(chan struct{}),
	}

	if janitorInterval > 0 {
		go s.janitor()
	} else {
		close(s.janitorDone)
	}

	return s
}

func (s *Store) janitor() {
	defer close(s.janitorDone)
	ticker := time.NewTicker(s.janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictExpired()
		case <-s.janitorStop:
			return
		}
	}
}

func (s *Store) evictExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
		}
	}
}

// lookup returns the live entry for key, dropping it if expired (must hold lock)
func (s *Store) lookup(key string) (entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return entry{}, false
	}
	if e.expired(time.Now()) {
		delete(s.entries, key)
		return entry{}, false
	}
	return e, true
}

func newEntry(value []byte, ttl time.Duration) entry {
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	return e
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = newEntry(value, ttl)
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	if !ok {
		return nil, kv.ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}

func (s *Store) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lookup(key); ok {
		return false, nil
	}
	s.entries[key] = newEntry(value, ttl)
	return true, nil
}

func (s *Store) CompareAndDelete(ctx context.Context, key string, value []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	if !ok || !bytes.Equal(e.value, value) {
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}

func (s *Store) Del(ctx context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for _, key := range keys {
		if _, ok := s.lookup(key); ok {
			deleted++
		}
		delete(s.entries, key)
	}
	return deleted, nil
}

func (s *Store) Exists(ctx context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, key := range keys {
		if _, ok := s.lookup(key); ok {
			n++
		}
	}
	return n, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.janitorStop)
	})
	<-s.janitorDone
	return nil
}
