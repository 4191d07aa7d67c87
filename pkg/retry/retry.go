// Package retry wraps exponential backoff for startup dependency probing
// (database and cache connections). Request paths never retry.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

type Config struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:      5,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      1.5,
	}
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs operation until it succeeds, returns a Permanent error, exhausts
// cfg.MaxRetries, or ctx is done.
func Do(ctx context.Context, logger *zap.SugaredLogger, operationName string, operation func() error, cfg Config) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.InitialInterval
	bo.MaxInterval = cfg.MaxInterval
	bo.Multiplier = cfg.Multiplier
	bo.MaxElapsedTime = 0
	bo.Reset()

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, cfg.MaxRetries), ctx)

	notify := func(err error, next time.Duration) {
		if logger == nil {
			return
		}
		logger.Warnw("Operation failed, retrying",
			"operation", operationName,
			"error", err,
			"next_attempt_in", next.Round(time.Millisecond).String(),
		)
	}

	return backoff.RetryNotify(operation, policy, notify)
}
