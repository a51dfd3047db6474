// Package gate enforces the write limits applied to anonymous writes.
// Every state-changing request from the public site passes through a
// fixed-window counter keyed by the salted hash of the client IP.
package gate

import (
	"context"
	"log/slog"
	"time"
)

// Deny reasons reported in a Verdict.
const (
	ReasonRateLimit     = "rate_limit"
	ReasonResourceLimit = "resource_vote_limit"
	ReasonInternal      = "internal"
)

// MaxVotesPerResource caps how many distinct votes one hashed IP may
// cast on a single resource. Re-votes by a known device do not count.
const MaxVotesPerResource = 3

// Counter is one fixed-window tally for a hashed IP.
type Counter struct {
	Key       string
	Count     int
	LastSeen  time.Time
	CreatedAt time.Time
}

// CounterStore persists window counters. Implementations live in the
// repository layer; the gate itself is storage-agnostic.
type CounterStore interface {
	// Get returns the counter for key, or nil when none exists.
	Get(ctx context.Context, key string) (*Counter, error)

	// Put inserts or replaces the counter for its key.
	Put(ctx context.Context, c Counter) error
}

// Verdict is the outcome of a gate check.
type Verdict struct {
	Allowed bool
	Reason  string // empty when allowed
	Count   int    // tally after the check
}

// Gate applies a fixed-window write limit over a CounterStore.
type Gate struct {
	store  CounterStore
	window time.Duration
	now    func() time.Time
}

// New creates a Gate with the given window length.
func New(store CounterStore, window time.Duration) *Gate {
	return &Gate{
		store:  store,
		window: window,
		now:    time.Now,
	}
}

// CheckAndRecord applies the fixed-window limit for the hashed key.
// The window is anchored at the counter's last accepted write. Denied
// attempts are not recorded, so a blocked client cannot keep its own
// window alive by retrying. Store failures deny the write.
func (g *Gate) CheckAndRecord(ctx context.Context, key string, limit int) Verdict {
	now := g.now()

	counter, err := g.store.Get(ctx, key)
	if err != nil {
		slog.Error("write gate store read failed", "error", err)
		return Verdict{Allowed: false, Reason: ReasonInternal}
	}

	if counter == nil {
		fresh := Counter{Key: key, Count: 1, LastSeen: now, CreatedAt: now}
		if err := g.store.Put(ctx, fresh); err != nil {
			slog.Error("write gate store write failed", "error", err)
			return Verdict{Allowed: false, Reason: ReasonInternal}
		}
		return Verdict{Allowed: true, Count: 1}
	}

	if now.Sub(counter.LastSeen) >= g.window {
		// Window elapsed since the last accepted write; start over
		reset := Counter{Key: key, Count: 1, LastSeen: now, CreatedAt: counter.CreatedAt}
		if err := g.store.Put(ctx, reset); err != nil {
			slog.Error("write gate store write failed", "error", err)
			return Verdict{Allowed: false, Reason: ReasonInternal}
		}
		return Verdict{Allowed: true, Count: 1}
	}

	candidate := counter.Count + 1
	if candidate > limit {
		return Verdict{Allowed: false, Reason: ReasonRateLimit, Count: counter.Count}
	}

	updated := *counter
	updated.Count = candidate
	updated.LastSeen = now
	if err := g.store.Put(ctx, updated); err != nil {
		slog.Error("write gate store write failed", "error", err)
		return Verdict{Allowed: false, Reason: ReasonInternal}
	}
	return Verdict{Allowed: true, Count: candidate}
}
