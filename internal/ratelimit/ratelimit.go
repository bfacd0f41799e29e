package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fastandpray/promo-dispatch/internal/kvstore"
)

// counterKey is global across all campaigns and workers: the window models a
// single shared provider quota, not a per-campaign budget.
const counterKey = "ratelimit:email:sends"

// Limiter tracks successful sends against a fixed window that starts at the
// first increment and expires with the counter's TTL.
//
// The check (Count) and the act (Increment) are separate store operations,
// so the ceiling is best-effort under concurrency: simultaneous batches can
// overshoot it by a small number of sends. Acceptable for promotional mail;
// a hard guarantee would need a single check-and-increment script.
type Limiter struct {
	store   kvstore.Store
	ceiling int
	window  time.Duration
}

// New creates a limiter with the given per-window ceiling.
func New(store kvstore.Store, ceiling int, window time.Duration) *Limiter {
	return &Limiter{store: store, ceiling: ceiling, window: window}
}

// Ceiling returns the configured maximum sends per window.
func (l *Limiter) Ceiling() int { return l.ceiling }

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration { return l.window }

// Count returns the number of sends recorded in the current window.
// An absent counter means a fresh window: zero.
func (l *Limiter) Count(ctx context.Context) (int64, error) {
	n, _, err := l.store.GetInt(ctx, counterKey)
	if err != nil {
		return 0, fmt.Errorf("read send counter: %w", err)
	}
	return n, nil
}

// AtCeiling reports whether the current window has no send budget left.
func (l *Limiter) AtCeiling(ctx context.Context) (bool, error) {
	n, err := l.Count(ctx)
	if err != nil {
		return false, err
	}
	return n >= int64(l.ceiling), nil
}

// Increment records one successful send. The first increment of a window
// creates the counter with the window TTL; later increments leave the TTL
// untouched so the window expires relative to its first send.
func (l *Limiter) Increment(ctx context.Context) (int64, error) {
	ok, err := l.store.SetNX(ctx, counterKey, "1", l.window)
	if err != nil {
		return 0, fmt.Errorf("start send window: %w", err)
	}
	if ok {
		return 1, nil
	}

	n, err := l.store.Incr(ctx, counterKey)
	if errors.Is(err, kvstore.ErrNoKey) {
		// Counter expired between the SetNX and the Incr. Start a fresh
		// window rather than fail the send accounting.
		if ok, err2 := l.store.SetNX(ctx, counterKey, "1", l.window); err2 == nil && ok {
			return 1, nil
		}
		return 0, fmt.Errorf("increment send counter: %w", err)
	}
	if err != nil {
		return 0, fmt.Errorf("increment send counter: %w", err)
	}
	return n, nil
}

// Reset clears the counter, abandoning the current window. Used by
// operational tooling, not by the dispatch path.
func (l *Limiter) Reset(ctx context.Context) error {
	return l.store.Delete(ctx, counterKey)
}
