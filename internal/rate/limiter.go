package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrLimited means the identifier or IP has exhausted its attempt budget.
	ErrLimited = errors.New("rate limited")
	// ErrUnavailable means the backing store could not be reached.
	ErrUnavailable = errors.New("rate limiter unavailable")
)

// Config holds throttle tuning parameters.
type Config struct {
	EnableIPThrottle bool
	MaxAttempts      int
	Cooldown         time.Duration
}

// Limiter throttles failed login attempts per identifier and per client IP.
// Successful logins reset the budget.
type Limiter interface {
	// Check returns ErrLimited if the identifier+IP pair has no budget left.
	Check(ctx context.Context, identifier, ip string) error
	// RecordFailure counts one failed attempt against the pair.
	RecordFailure(ctx context.Context, identifier, ip string) error
	// Reset clears the pair's counters.
	Reset(ctx context.Context, identifier, ip string) error
}

func loginKey(identifier string) string { return "ll:" + identifier }
func loginIPKey(ip string) string       { return "lli:" + ip }

// RedisLimiter enforces the budget with shared Redis counters so every
// process observes the same window.
type RedisLimiter struct {
	redis  redis.UniversalClient
	config Config
}

// NewRedis creates a RedisLimiter backed by the given client.
func NewRedis(client redis.UniversalClient, cfg Config) *RedisLimiter {
	return &RedisLimiter{redis: client, config: cfg}
}

func (l *RedisLimiter) Check(ctx context.Context, identifier, ip string) error {
	if err := l.checkCounter(ctx, loginKey(identifier)); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.checkCounter(ctx, loginIPKey(ip)); err != nil {
			return err
		}
	}
	return nil
}

func (l *RedisLimiter) RecordFailure(ctx context.Context, identifier, ip string) error {
	count, err := l.incrementWithTTL(ctx, loginKey(identifier))
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxAttempts) {
		return ErrLimited
	}

	if l.config.EnableIPThrottle && ip != "" {
		count, err = l.incrementWithTTL(ctx, loginIPKey(ip))
		if err != nil {
			return err
		}
		if count > int64(l.config.MaxAttempts) {
			return ErrLimited
		}
	}
	return nil
}

func (l *RedisLimiter) Reset(ctx context.Context, identifier, ip string) error {
	keys := []string{loginKey(identifier)}
	if l.config.EnableIPThrottle && ip != "" {
		keys = append(keys, loginIPKey(ip))
	}
	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (l *RedisLimiter) checkCounter(ctx context.Context, key string) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count >= int64(l.config.MaxAttempts) {
		return ErrLimited
	}
	return nil
}

func (l *RedisLimiter) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Cooldown).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return count, nil
}

var _ Limiter = (*RedisLimiter)(nil)
