// Package ratelimit implements a fixed-window request limiter with an
// in-memory store for single instances and a Redis store for shared limits.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/attendance-engine/internal/constants"
)

// Store counts hits per key in fixed windows.
type Store interface {
	// Hit records one request and returns the count in the current window
	// and when that window ends.
	Hit(ctx context.Context, key string, window time.Duration) (count int, resetAt time.Time, err error)
}

// Decision is the limiter's answer for one request.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns how long the client should wait, rounded up to a second.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait <= 0 {
		return time.Second
	}
	return wait.Truncate(time.Second) + time.Second
}

type Limiter struct {
	store  Store
	limit  int
	window time.Duration
}

// New creates a limiter allowing limit hits per window. Non-positive values
// fall back to the defaults.
func New(store Store, limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = constants.DefaultRateLimit
	}
	if window <= 0 {
		window = constants.DefaultRateWindow
	}
	return &Limiter{store: store, limit: limit, window: window}
}

// Allow records a hit for key.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	count, resetAt, err := l.store.Hit(ctx, key, l.window)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", key, err)
	}
	return Decision{
		Allowed:   count <= l.limit,
		Limit:     l.limit,
		Remaining: max(l.limit-count, 0),
		ResetAt:   resetAt,
	}, nil
}
