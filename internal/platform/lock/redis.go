// Package lock provides best-effort key locks in front of the authoritative
// store transactions. A lock only reduces contention; correctness never
// depends on holding one.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/dispatch-ledger/internal/config"
	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/redis/go-redis/v9"
)

// ErrNotObtained means another holder owns the key
var ErrNotObtained = errors.New("lock not obtained")

// Lock is a held key
type Lock interface {
	Release(ctx context.Context) error
}

// Locker obtains key locks
type Locker interface {
	Obtain(ctx context.Context, key string) (Lock, error)
}

// OpenRedis connects to Redis and verifies the connection
func OpenRedis(ctx context.Context, logger *slog.Logger, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: 100,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	logger.Info("Connected to Redis", "addr", cfg.Addr, "db", cfg.DB)
	return client, nil
}

type obtainer interface {
	Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (*redislock.Lock, error)
}

// RedisLocker obtains locks through redislock
type RedisLocker struct {
	client  obtainer
	ttl     time.Duration
	options *redislock.Options
}

// NewRedisLocker creates a locker that waits briefly for a busy key before giving up
func NewRedisLocker(client redislock.RedisClient, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		client: redislock.New(client),
		ttl:    ttl,
		options: &redislock.Options{
			RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), 5),
		},
	}
}

func (l *RedisLocker) Obtain(ctx context.Context, key string) (Lock, error) {
	lk, err := l.client.Obtain(ctx, key, l.ttl, l.options)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrNotObtained
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain lock %s: %w", key, err)
	}
	return lk, nil
}

// NoopLocker always succeeds; used when Redis is disabled
type NoopLocker struct{}

func (NoopLocker) Obtain(context.Context, string) (Lock, error) {
	return noopLock{}, nil
}

type noopLock struct{}

func (noopLock) Release(context.Context) error { return nil }

// Guard runs fn while holding key. A busy key surfaces as a retryable
// shared.AbortedError; any other locker failure degrades to running fn
// without the lock.
func Guard(ctx context.Context, l Locker, logger *slog.Logger, key string, fn func(ctx context.Context) error) error {
	if l == nil {
		return fn(ctx)
	}

	held, err := l.Obtain(ctx, key)
	switch {
	case errors.Is(err, ErrNotObtained):
		return shared.AbortedError{Op: "lock " + key, Err: err}
	case err != nil:
		logger.Warn("Lock unavailable, proceeding without it", "key", key, "error", err)
		return fn(ctx)
	}

	defer func() {
		if releaseErr := held.Release(context.WithoutCancel(ctx)); releaseErr != nil && !errors.Is(releaseErr, redislock.ErrLockNotHeld) {
			logger.Warn("Failed to release lock", "key", key, "error", releaseErr)
		}
	}()

	return fn(ctx)
}
