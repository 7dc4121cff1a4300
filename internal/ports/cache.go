package ports

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by CacheStore reads when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// CacheStore is the shared TTL key/value store. It backs the token mirror, the
// failed-attempt counters and the ephemeral token records, so every operation
// must be safe across service instances.
type CacheStore interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, keys ...string) error
	Increment(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	AddToSet(ctx context.Context, key string, ttl time.Duration, members ...string) error
	MembersOf(ctx context.Context, key string) ([]string, error)
	RemoveFromSet(ctx context.Context, key string, members ...string) error

	// IncrementWithin increments key and, when the increment created it,
	// sets window as its TTL. Both happen in one atomic step.
	IncrementWithin(ctx context.Context, key string, window time.Duration) (int64, error)
	// Take returns the value and deletes the key atomically.
	Take(ctx context.Context, key string) ([]byte, error)
	// DeleteIfEquals deletes key only when it currently holds value.
	DeleteIfEquals(ctx context.Context, key string, value []byte) (bool, error)
}
