// Package rate provides the login throttling primitives used by the engine.
//
// Two implementations share one interface. RedisLimiter uses fixed-window
// counters (INCR plus conditional EXPIRE on the first hit in a window) so
// every process sees the same budget. LocalLimiter keeps per-key token
// buckets in memory for single-process deployments and tests.
//
// Key prefixes in Redis:
//   - ll:  login attempts per identifier
//   - lli: login attempts per client IP
package rate
