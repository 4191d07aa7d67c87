package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/postmaster/postmaster-backend/pkg/kv"
	"github.com/redis/go-redis/v9"
)

// Store is a Redis-backed implementation of the kv.Store interface
type Store struct {
	client *redis.Client
}

var _ kv.Store = (*Store)(nil)

// compareAndDelete deletes KEYS[1] only while it holds ARGV[1].
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// IsConnectionError reports whether err is a transport-level failure rather
// than a Redis reply.
func IsConnectionError(err error) bool {
	if err == nil || errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var sysErr syscall.Errno
	if errors.As(err, &sysErr) {
		switch sysErr {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ECONNABORTED, syscall.ETIMEDOUT:
			return true
		}
	}

	msg := err.Error()
	for _, s := range []string{"connection refused", "connection reset", "broken pipe", "no such host", "connection closed", "EOF"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	if IsConnectionError(err) {
		return fmt.Errorf("%w: %v", kv.ErrBackendUnavailable, err)
	}
	return err
}

// ParseOptions accepts redis:// URLs as well as bare host:port addresses.
func ParseOptions(redisURL string) (*redis.Options, error) {
	if strings.Contains(redisURL, "://") {
		return redis.ParseURL(redisURL)
	}
	if redisURL == "" {
		return nil, fmt.Errorf("redis address is empty")
	}
	return &redis.Options{
		Addr:         redisURL,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	}, nil
}

// New creates a Redis-backed store and verifies the connection.
func New(redisURL string) (*Store, error) {
	opt, err := ParseOptions(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, wrap(err)
	}

	return &Store{client: client}, nil
}

// NewFromClient wraps an existing client without probing it.
func NewFromClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Client exposes the underlying client for features outside kv.Store, such as pubsub.
func (s *Store) Client() *redis.Client {
	return s.client
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return wrap(s.client.Set(ctx, key, value, ttl).Err())
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, kv.ErrNotFound
		}
		return nil, wrap(err)
	}
	return result, nil
}

func (s *Store) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	return ok, wrap(err)
}

func (s *Store) CompareAndDelete(ctx context.Context, key string, value []byte) (bool, error) {
	n, err := compareAndDelete.Run(ctx, s.client, []string{key}, value).Int64()
	if err != nil {
		return false, wrap(err)
	}
	return n > 0, nil
}

func (s *Store) Del(ctx context.Context, keys ...string) (int64, error) {
	n, err := s.client.Del(ctx, keys...).Result()
	return n, wrap(err)
}

func (s *Store) Exists(ctx context.Context, keys ...string) (int64, error) {
	n, err := s.client.Exists(ctx, keys...).Result()
	return n, wrap(err)
}

func (s *Store) Ping(ctx context.Context) error {
	return wrap(s.client.Ping(ctx).Err())
}

func (s *Store) Close() error {
	return s.client.Close()
}
