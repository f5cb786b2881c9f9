package rate

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LocalLimiter keeps per-key token buckets in process memory. Each failed
// attempt consumes one token; tokens refill over the cooldown window. Stale
// buckets are swept periodically so the map does not grow without bound.
type LocalLimiter struct {
	config Config

	mu      sync.Mutex
	buckets map[string]*bucket
	done    chan struct{}
	once    sync.Once
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewLocal creates a LocalLimiter and starts its sweeper goroutine. Call
// Close when the limiter is no longer needed.
func NewLocal(cfg Config) *LocalLimiter {
	l := &LocalLimiter{
		config:  cfg,
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Close stops the sweeper goroutine.
func (l *LocalLimiter) Close() {
	l.once.Do(func() { close(l.done) })
}

func (l *LocalLimiter) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-2 * l.config.Cooldown)
			l.mu.Lock()
			for k, b := range l.buckets {
				if b.seen.Before(cutoff) {
					delete(l.buckets, k)
				}
			}
			l.mu.Unlock()
		}
	}
}

func (l *LocalLimiter) bucketFor(key string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		// The budget refills fully over one cooldown window.
		refill := rate.Limit(float64(l.config.MaxAttempts) / l.config.Cooldown.Seconds())
		b = &bucket{lim: rate.NewLimiter(refill, l.config.MaxAttempts)}
		l.buckets[key] = b
	}
	b.seen = time.Now()
	return b
}

func (l *LocalLimiter) Check(_ context.Context, identifier, ip string) error {
	if l.bucketFor(loginKey(identifier)).lim.Tokens() < 1 {
		return ErrLimited
	}
	if l.config.EnableIPThrottle && ip != "" {
		if l.bucketFor(loginIPKey(ip)).lim.Tokens() < 1 {
			return ErrLimited
		}
	}
	return nil
}

func (l *LocalLimiter) RecordFailure(_ context.Context, identifier, ip string) error {
	if !l.bucketFor(loginKey(identifier)).lim.Allow() {
		return ErrLimited
	}
	if l.config.EnableIPThrottle && ip != "" {
		if !l.bucketFor(loginIPKey(ip)).lim.Allow() {
			return ErrLimited
		}
	}
	return nil
}

func (l *LocalLimiter) Reset(_ context.Context, identifier, ip string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, loginKey(identifier))
	if ip != "" {
		delete(l.buckets, loginIPKey(ip))
	}
	return nil
}

var _ Limiter = (*LocalLimiter)(nil)
