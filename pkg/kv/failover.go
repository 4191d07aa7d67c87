package kv

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// LogFunc is a function type for structured logging
type LogFunc func(msg string, fields ...any)

// FailoverStore serves from a primary store (usually Redis) and switches to a
// fallback (usually in-memory) when the primary reports ErrBackendUnavailable.
// While degraded it pings the primary every probe interval and switches back
// once it answers. Keys written to one side are not copied to the other.
type FailoverStore struct {
	primary       Store
	fallback      Store
	active        atomic.Pointer[Store]
	probeInterval time.Duration
	logger        LogFunc

	mu        sync.Mutex
	probing   bool
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ Store = (*FailoverStore)(nil)

// NewFailoverStore creates a store that starts on the primary.
func NewFailoverStore(primary, fallback Store, probeInterval time.Duration, logger LogFunc) *FailoverStore {
	if logger == nil {
		logger = func(string, ...any) {}
	}
	if probeInterval <= 0 {
		probeInterval = 5 * time.Second
	}
	fs := &FailoverStore{
		primary:       primary,
		fallback:      fallback,
		probeInterval: probeInterval,
		logger:        logger,
		closed:        make(chan struct{}),
	}
	fs.active.Store(&fs.primary)
	return fs
}

// NewFailoverStoreWithFallbackActive starts on the fallback and probes the
// primary right away. Used when the primary was unreachable at startup.
func NewFailoverStoreWithFallbackActive(primary, fallback Store, probeInterval time.Duration, logger LogFunc) *FailoverStore {
	fs := NewFailoverStore(primary, fallback, probeInterval, logger)
	fs.active.Store(&fs.fallback)
	fs.mu.Lock()
	fs.startProbingLocked()
	fs.mu.Unlock()
	return fs
}

func (fs *FailoverStore) current() Store {
	return *fs.active.Load()
}

// OnPrimary reports whether requests currently go to the primary store.
func (fs *FailoverStore) OnPrimary() bool {
	return fs.active.Load() == &fs.primary
}

// ActiveBackend returns "primary" or "fallback".
func (fs *FailoverStore) ActiveBackend() string {
	if fs.OnPrimary() {
		return "primary"
	}
	return "fallback"
}

// Demote switches to the fallback and starts probing the primary. Callers
// that reach the primary outside the Store interface use it to report an
// outage the store could not observe itself.
func (fs *FailoverStore) Demote() {
	fs.demote()
}

func (fs *FailoverStore) demote() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.OnPrimary() {
		return
	}
	fs.active.Store(&fs.fallback)
	fs.logger("Failing over to in-memory store", "reason", "primary_unavailable")
	fs.startProbingLocked()
}

func (fs *FailoverStore) startProbingLocked() {
	if fs.probing {
		return
	}
	select {
	case <-fs.closed:
		return
	default:
	}
	fs.probing = true
	fs.wg.Add(1)
	go fs.probeLoop()
}

func (fs *FailoverStore) probeLoop() {
	defer fs.wg.Done()

	ticker := time.NewTicker(fs.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-fs.closed:
			fs.mu.Lock()
			fs.probing = false
			fs.mu.Unlock()
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), fs.probeInterval/2)
			err := fs.primary.Ping(ctx)
			cancel()
			if err != nil {
				continue
			}

			fs.mu.Lock()
			fs.active.Store(&fs.primary)
			fs.probing = false
			fs.mu.Unlock()
			fs.logger("Recovered to primary store", "reason", "primary_healthy")
			return
		}
	}
}

// do runs op on the active store, retrying once on the fallback when the
// primary turns out to be unreachable.
func do[T any](fs *FailoverStore, op func(Store) (T, error)) (T, error) {
	onPrimary := fs.OnPrimary()
	result, err := op(fs.current())
	if onPrimary && errors.Is(err, ErrBackendUnavailable) {
		fs.demote()
		return op(fs.fallback)
	}
	return result, err
}

func (fs *FailoverStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := do(fs, func(s Store) (struct{}, error) {
		return struct{}{}, s.Set(ctx, key, value, ttl)
	})
	return err
}

func (fs *FailoverStore) Get(ctx context.Context, key string) ([]byte, error) {
	return do(fs, func(s Store) ([]byte, error) {
		return s.Get(ctx, key)
	})
}

func (fs *FailoverStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return do(fs, func(s Store) (bool, error) {
		return s.SetNX(ctx, key, value, ttl)
	})
}

func (fs *FailoverStore) CompareAndDelete(ctx context.Context, key string, value []byte) (bool, error) {
	return do(fs, func(s Store) (bool, error) {
		return s.CompareAndDelete(ctx, key, value)
	})
}

func (fs *FailoverStore) Del(ctx context.Context, keys ...string) (int64, error) {
	return do(fs, func(s Store) (int64, error) {
		return s.Del(ctx, keys...)
	})
}

func (fs *FailoverStore) Exists(ctx context.Context, keys ...string) (int64, error) {
	return do(fs, func(s Store) (int64, error) {
		return s.Exists(ctx, keys...)
	})
}

// Ping checks the active store.
func (fs *FailoverStore) Ping(ctx context.Context) error {
	return fs.current().Ping(ctx)
}

// Close stops probing and closes both stores.
func (fs *FailoverStore) Close() error {
	fs.mu.Lock()
	fs.closeOnce.Do(func() { close(fs.closed) })
	fs.mu.Unlock()
	fs.wg.Wait()

	return errors.Join(fs.primary.Close(), fs.fallback.Close())
}
