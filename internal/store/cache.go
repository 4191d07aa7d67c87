package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/postmaster/postmaster-backend/internal/metrics"
	"github.com/postmaster/postmaster-backend/pkg/kv"
	memkv "github.com/postmaster/postmaster-backend/pkg/kv/memory"
	rediskv "github.com/postmaster/postmaster-backend/pkg/kv/redis"
)

// Cache is a JSON cache plus pubsub. With Redis configured, key operations go
// through a kv.FailoverStore that drops to memory while Redis is unreachable
// and returns once it answers again; pubsub follows the same switch.
type Cache struct {
	// nil when no Redis address is configured
	client   *redis.Client
	failover *kv.FailoverStore
	// kvStore serves key operations; it is the failover store when client is set
	kvStore kv.Store
	// in-memory pubsub used whenever Redis is not serving
	pubsubHub *PubSubHub

	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

// probeInterval is how often a degraded cache pings Redis.
var probeInterval = 5 * time.Second

func NewCache(addr string, logger *zap.SugaredLogger, metrics *metrics.Metrics) (*Cache, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if addr == "" {
		return NewInMemoryCache(logger, metrics), nil
	}

	opt, err := rediskv.ParseOptions(addr)
	if err != nil {
		return nil, fmt.Errorf("redis options: %w", err)
	}
	client := redis.NewClient(opt)
	primary := rediskv.NewFromClient(client)
	fallback := memkv.New(30 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var failover *kv.FailoverStore
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warnw("Redis unavailable; using in-memory cache and pubsub until it recovers", "addr", addr, "error", err)
		failover = kv.NewFailoverStoreWithFallbackActive(primary, fallback, probeInterval, logger.Infow)
	} else {
		failover = kv.NewFailoverStore(primary, fallback, probeInterval, logger.Infow)
	}

	return &Cache{
		client:    client,
		failover:  failover,
		kvStore:   failover,
		pubsubHub: NewPubSubHub(),
		logger:    logger,
		metrics:   metrics,
	}, nil
}

// NewInMemoryCache returns a process-local cache.
func NewInMemoryCache(logger *zap.SugaredLogger, metrics *metrics.Metrics) *Cache {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Cache{
		kvStore:   memkv.New(30 * time.Second),
		pubsubHub: NewPubSubHub(),
		logger:    logger,
		metrics:   metrics,
	}
}

// Cache key prefixes
const (
	KeyDashboard  = "pm:dashboard"
	KeySweepLease = "pm:sweep:lease"
)

// DashboardKey is the per-user dashboard summary key.
func DashboardKey(userID string) string {
	return fmt.Sprintf("%s:%s", KeyDashboard, userID)
}

// SweepLeaseKey is the per-owner sweeper lease key.
func SweepLeaseKey(owner string) string {
	return fmt.Sprintf("%s:%s", KeySweepLease, owner)
}

// NotificationChannel is the pubsub channel carrying one user's notifications.
func NotificationChannel(userID string) string {
	return fmt.Sprintf("pm:user:%s:notifications", userID)
}

// KV exposes the underlying store for leases.
func (c *Cache) KV() kv.Store {
	return c.kvStore
}

func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.kvStore.Get(ctx, key)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			if c.metrics != nil {
				c.metrics.RecordCacheMiss(ctx, keyPrefix(key))
			}
			return ErrCacheMiss
		}
		c.logger.Errorw("Cache get error", "key", key, "error", err)
		return fmt.Errorf("cache get error: %w", err)
	}
	if c.metrics != nil {
		c.metrics.RecordCacheHit(ctx, keyPrefix(key))
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("cache unmarshal error: %w", err)
	}
	return nil
}

func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}
	if err := c.kvStore.Set(ctx, key, data, ttl); err != nil {
		c.logger.Errorw("Cache set error", "key", key, "error", err)
		return fmt.Errorf("cache set error: %w", err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := c.kvStore.Del(ctx, keys...); err != nil {
		c.logger.Errorw("Cache delete error", "keys", keys, "error", err)
		return fmt.Errorf("cache delete error: %w", err)
	}
	return nil
}

func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	count, err := c.kvStore.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("cache exists error: %w", err)
	}
	return count > 0, nil
}

// Publish JSON-encodes message onto channel.
func (c *Cache) Publish(ctx context.Context, channel string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("pubsub marshal error: %w", err)
	}

	if c.onRedis() {
		err := c.client.Publish(ctx, channel, data).Err()
		if err == nil {
			return nil
		}
		if !rediskv.IsConnectionError(err) {
			c.logger.Errorw("Publish error", "channel", channel, "error", err)
			return fmt.Errorf("pubsub publish error: %w", err)
		}
		c.logger.Warnw("Redis publish failed; delivering in memory", "channel", channel, "error", err)
		c.failover.Demote()
	}

	c.pubsubHub.Publish(channel, string(data))
	c.logger.Debugw("Published to in-memory pubsub", "channel", channel)
	return nil
}

// Subscribe listens on channels until ctx ends or the subscription is closed.
func (c *Cache) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	if !c.onRedis() {
		return c.pubsubHub.Subscribe(ctx, channels...), nil
	}

	ps := c.client.Subscribe(ctx, channels...)
	// wait for the subscription to be confirmed so no publish is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		if rediskv.IsConnectionError(err) {
			c.logger.Warnw("Redis subscribe failed; subscribing in memory", "channels", channels, "error", err)
			c.failover.Demote()
			return c.pubsubHub.Subscribe(ctx, channels...), nil
		}
		return nil, fmt.Errorf("pubsub subscribe error: %w", err)
	}
	// the hub side carries publishes made while Redis is down
	return newRedisSubscription(ctx, ps, c.pubsubHub.Subscribe(ctx, channels...)), nil
}

// Hub returns the in-memory pubsub hub used while Redis is not serving.
func (c *Cache) Hub() *PubSubHub {
	return c.pubsubHub
}

func (c *Cache) onRedis() bool {
	return c.client != nil && c.failover.OnPrimary()
}

// IsInMemoryMode reports whether the cache is currently served from memory,
// either by configuration or because Redis is down.
func (c *Cache) IsInMemoryMode() bool {
	return !c.onRedis()
}

// Health check
func (c *Cache) Ping(ctx context.Context) error {
	return c.kvStore.Ping(ctx)
}

// Close connection
func (c *Cache) Close() error {
	return c.kvStore.Close()
}

func keyPrefix(key string) string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == ':' {
			return key[:i]
		}
	}
	return key
}

// Error types
var (
	ErrCacheMiss = errors.New("cache miss")
)
