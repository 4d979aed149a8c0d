// Package kv defines the small key-value store contract used for OTP
// storage, rate-limit counters, and the callback-token mapping (spec.md
// §4.9, §6 "Persisted state layout"); refresh tokens are persisted through
// internal/storage.AuthStore instead. The
// concrete implementation is Redis (github.com/go-redis/redis/v8, the
// teacher's own cache/session dependency); internal/platform/kv/memory.go
// provides an in-process double for tests.
package kv

import (
	"context"
	"time"
)

// Store is the minimal set of atomic primitives spec.md §5 allows shared
// mutable state to use outside the database: SETNX, INCR, EXPIRE.
type Store interface {
	// SetNX sets key to value with ttl only if key does not already exist,
	// returning whether the set happened.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Set unconditionally sets key to value with ttl.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns the value and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// Del removes key.
	Del(ctx context.Context, key string) error
	// Incr atomically increments key (creating it at 1 if absent) and
	// applies ttl only on the first creation, for sliding-window counters.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Ping checks connectivity, used by the readiness probe (spec.md §6).
	Ping(ctx context.Context) error
}
