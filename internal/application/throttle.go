package application

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/ports"
)

const (
	loginAttemptPrefix = "auth:login:fail:"
	resetAttemptPrefix = "auth:reset:fail:"
)

// ThrottleGuard counts failures per identity in the shared cache. The counter
// is created by the first failure and expires one window later; it is never
// extended by later failures.
type ThrottleGuard struct {
	cache       ports.CacheStore
	prefix      string
	maxAttempts int
	window      time.Duration
}

func NewThrottleGuard(cache ports.CacheStore, prefix string, maxAttempts int, window time.Duration) *ThrottleGuard {
	return &ThrottleGuard{
		cache:       cache,
		prefix:      prefix,
		maxAttempts: maxAttempts,
		window:      window,
	}
}

func (g *ThrottleGuard) key(identity string) string {
	return g.prefix + strings.ToLower(strings.TrimSpace(identity))
}

// CheckAllowed fails with domain.ErrTooManyAttempts once the counter has
// reached the threshold. An unreadable counter is reported as an error.
func (g *ThrottleGuard) CheckAllowed(ctx context.Context, identity string) error {
	raw, err := g.cache.Get(ctx, g.key(identity))
	if err != nil {
		if errors.Is(err, ports.ErrCacheMiss) {
			return nil
		}
		return fmt.Errorf("read attempt counter: %w", err)
	}
	count, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return fmt.Errorf("parse attempt counter: %w", err)
	}
	if count >= int64(g.maxAttempts) {
		return domain.ErrTooManyAttempts
	}
	return nil
}

// RecordFailure increments the counter and starts the window on the first failure.
func (g *ThrottleGuard) RecordFailure(ctx context.Context, identity string) (int64, error) {
	return g.cache.IncrementWithin(ctx, g.key(identity), g.window)
}

func (g *ThrottleGuard) Reset(ctx context.Context, identity string) error {
	return g.cache.Delete(ctx, g.key(identity))
}
