package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisLimiter(t *testing.T, cfg Config) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedis(rdb, cfg), mr
}

func TestRedisLimiterBudget(t *testing.T) {
	ctx := context.Background()
	lim, _ := newRedisLimiter(t, Config{MaxAttempts: 3, Cooldown: time.Minute})

	for i := 0; i < 3; i++ {
		if err := lim.Check(ctx, "alice", ""); err != nil {
			t.Fatalf("Check before exhaustion (attempt %d): %v", i, err)
		}
		if err := lim.RecordFailure(ctx, "alice", ""); err != nil {
			t.Fatalf("RecordFailure %d: %v", i, err)
		}
	}

	if err := lim.Check(ctx, "alice", ""); !errors.Is(err, ErrLimited) {
		t.Fatalf("Check after exhaustion = %v, want ErrLimited", err)
	}
	// Other identifiers keep their own budget.
	if err := lim.Check(ctx, "bob", ""); err != nil {
		t.Fatalf("unrelated identifier throttled: %v", err)
	}
}

func TestRedisLimiterResetOnSuccess(t *testing.T) {
	ctx := context.Background()
	lim, _ := newRedisLimiter(t, Config{MaxAttempts: 2, Cooldown: time.Minute})

	for i := 0; i < 2; i++ {
		_ = lim.RecordFailure(ctx, "alice", "")
	}
	if err := lim.Check(ctx, "alice", ""); !errors.Is(err, ErrLimited) {
		t.Fatalf("expected ErrLimited before reset, got %v", err)
	}

	if err := lim.Reset(ctx, "alice", ""); err != nil {
		t.Fatalf("Reset error: %v", err)
	}
	if err := lim.Check(ctx, "alice", ""); err != nil {
		t.Fatalf("Check after reset: %v", err)
	}
}

func TestRedisLimiterWindowExpiry(t *testing.T) {
	ctx := context.Background()
	lim, mr := newRedisLimiter(t, Config{MaxAttempts: 1, Cooldown: time.Minute})

	_ = lim.RecordFailure(ctx, "alice", "")
	if err := lim.Check(ctx, "alice", ""); !errors.Is(err, ErrLimited) {
		t.Fatalf("expected ErrLimited inside window, got %v", err)
	}

	mr.FastForward(2 * time.Minute)
	if err := lim.Check(ctx, "alice", ""); err != nil {
		t.Fatalf("Check after window expiry: %v", err)
	}
}

func TestRedisLimiterIPThrottle(t *testing.T) {
	ctx := context.Background()
	lim, _ := newRedisLimiter(t, Config{EnableIPThrottle: true, MaxAttempts: 2, Cooldown: time.Minute})

	// Different identifiers, same source address.
	_ = lim.RecordFailure(ctx, "alice", "10.0.0.9")
	_ = lim.RecordFailure(ctx, "bob", "10.0.0.9")

	if err := lim.Check(ctx, "carol", "10.0.0.9"); !errors.Is(err, ErrLimited) {
		t.Fatalf("expected IP budget exhausted, got %v", err)
	}
	if err := lim.Check(ctx, "carol", "10.0.0.10"); err != nil {
		t.Fatalf("unrelated IP throttled: %v", err)
	}
}

func TestLocalLimiterBudget(t *testing.T) {
	ctx := context.Background()
	lim := NewLocal(Config{MaxAttempts: 3, Cooldown: time.Hour})
	defer lim.Close()

	for i := 0; i < 3; i++ {
		if err := lim.RecordFailure(ctx, "alice", ""); err != nil {
			t.Fatalf("RecordFailure %d: %v", i, err)
		}
	}
	if err := lim.Check(ctx, "alice", ""); !errors.Is(err, ErrLimited) {
		t.Fatalf("Check after exhaustion = %v, want ErrLimited", err)
	}
	if err := lim.RecordFailure(ctx, "alice", ""); !errors.Is(err, ErrLimited) {
		t.Fatalf("RecordFailure after exhaustion = %v, want ErrLimited", err)
	}

	if err := lim.Reset(ctx, "alice", ""); err != nil {
		t.Fatalf("Reset error: %v", err)
	}
	if err := lim.Check(ctx, "alice", ""); err != nil {
		t.Fatalf("Check after reset: %v", err)
	}
}
