// Package ratelimit implements fixed-window request limiting over a
// pluggable counter store.
//
// A window opens at the first hit for a key and lasts Rule.Window. Hits
// past Rule.Limit inside the window are rejected until it expires. Like any
// fixed window, a client can burst up to twice the limit across a window
// boundary.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Rule is a request ceiling per window. A Limit of zero or less disables
// limiting.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Disabled reports whether the rule lets everything through.
func (r Rule) Disabled() bool {
	return r.Limit <= 0 || r.Window <= 0
}

func (r Rule) String() string {
	return fmt.Sprintf("%d/%s", r.Limit, r.Window)
}

// Decision is the outcome of one Check.
type Decision struct {
	Allowed    bool
	Count      int
	Limit      int
	Remaining  int
	RetryAfter time.Duration // zero when allowed
	ResetAt    time.Time
}

// CounterStore counts hits per key within fixed windows. Incr adds one hit
// and returns the count so far in the current window and when that window
// started. Implementations must be safe for concurrent use.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration, now time.Time) (count int, windowStart time.Time, err error)
}

// Limiter applies rules to identities using a CounterStore.
type Limiter struct {
	store CounterStore
	now   func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a limiter backed by store.
func New(store CounterStore, opts ...Option) *Limiter {
	l := &Limiter{store: store, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Key is the counter key for an identity calling an endpoint.
func Key(identity, endpoint string) string {
	return identity + ":" + endpoint
}

// Check counts one call by identity to endpoint and decides whether it may
// proceed. On a store error the decision allows the call and the error is
// returned for the caller to log.
func (l *Limiter) Check(ctx context.Context, identity, endpoint string, rule Rule) (Decision, error) {
	if rule.Disabled() {
		return Decision{Allowed: true, Limit: rule.Limit}, nil
	}

	now := l.now()
	count, start, err := l.store.Incr(ctx, Key(identity, endpoint), rule.Window, now)
	if err != nil {
		return Decision{Allowed: true, Limit: rule.Limit, Remaining: rule.Limit}, fmt.Errorf("rate limit %s: %w", endpoint, err)
	}

	resetAt := start.Add(rule.Window)
	d := Decision{
		Allowed:   count <= rule.Limit,
		Count:     count,
		Limit:     rule.Limit,
		Remaining: rule.Limit - count,
		ResetAt:   resetAt,
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if !d.Allowed {
		d.RetryAfter = resetAt.Sub(now)
		if d.RetryAfter < 0 {
			d.RetryAfter = 0
		}
	}
	return d, nil
}
