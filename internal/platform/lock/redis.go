// Package lock provides short-lived distributed locks backed by Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Locker obtains named locks with a fixed TTL.
type Locker struct {
	client *redislock.Client
	ttl    time.Duration
	retry  redislock.RetryStrategy
	logger *slog.Logger
}

// New constructs a Locker. Acquisition retries briefly before giving up.
func New(rdb redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Locker{
		client: redislock.New(rdb),
		ttl:    ttl,
		retry:  redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 20),
		logger: logger,
	}
}

// Acquire obtains key and returns its release function. A lock held elsewhere
// surfaces as shared.ErrConflict.
func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	lk, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{RetryStrategy: l.retry})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, fmt.Errorf("%w: %s is busy", shared.ErrConflict, key)
		}
		return nil, fmt.Errorf("platform/lock: obtain %s: %w", key, err)
	}
	return func() {
		// Release uses a fresh context so a cancelled request still frees the key.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := lk.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn("release lock", slog.String("key", key), slog.Any("error", err))
		}
	}, nil
}
