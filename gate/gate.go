// Package gate hides the chat entrance behind a repeated-tap gesture on the
// cover UI. Three taps inside a rolling window trigger an advisory server
// access check; only then is the guard armed and the chat surface revealed.
// The check is UX discretion, not authorization; every API call is
// authorized server-side on its own.
package gate

import (
	"context"
	"sync"
	"time"
)

const (
	// TapThreshold is the number of taps that opens the gate.
	TapThreshold = 3
	// TapWindow is the maximum gap between consecutive taps before the
	// counter resets.
	TapWindow = 800 * time.Millisecond
	// DenialVisible is how long the neutral denial indicator stays up
	// before auto-hiding.
	DenialVisible = 3 * time.Second
)

// Outcome is what a single tap produced.
type Outcome int

const (
	// OutcomePending means the tap counted but the threshold is not
	// reached yet. Indistinguishable from an ordinary click on the logo.
	OutcomePending Outcome = iota
	// OutcomeRevealed means the access check passed and the chat surface
	// is now revealed.
	OutcomeRevealed
	// OutcomeDenied means the third tap landed but access was not
	// granted. The UI shows only a neutral, time-limited indicator; no
	// detail distinguishes "no rooms" from "not authorized" from a
	// transport failure.
	OutcomeDenied
)

// AccessChecker answers whether the current identity can see at least one
// room. Implemented by the API client against the server.
type AccessChecker interface {
	HasAccess(ctx context.Context) (bool, error)
}

// Revealer is armed when the gate opens. Satisfied by *guard.Controller.
type Revealer interface {
	Reveal()
}

// Gate is the timeout-driven tap counter state machine.
type Gate struct {
	mu       sync.Mutex
	taps     int
	deadline time.Time

	now      func() time.Time
	checker  AccessChecker
	revealer Revealer
}

// Option configures the Gate.
type Option func(*Gate)

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
	}
}

// New creates a Gate wired to an access checker and a revealer.
func New(checker AccessChecker, revealer Revealer, opts ...Option) *Gate {
	g := &Gate{
		now:      time.Now,
		checker:  checker,
		revealer: revealer,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Tap records one tap on the entry point and returns what it produced. On the
// third qualifying tap the access check runs; the counter resets whether the
// check passes or not.
func (g *Gate) Tap(ctx context.Context) Outcome {
	g.mu.Lock()
	now := g.now()
	if g.taps > 0 && now.After(g.deadline) {
		g.taps = 0
	}
	g.taps++
	if g.taps < TapThreshold {
		g.deadline = now.Add(TapWindow)
		g.mu.Unlock()
		return OutcomePending
	}
	g.taps = 0
	g.mu.Unlock()

	// Transport failures fold into the same neutral denial: the gate must
	// never leak that hidden functionality exists.
	ok, err := g.checker.HasAccess(ctx)
	if err != nil || !ok {
		return OutcomeDenied
	}
	g.revealer.Reveal()
	return OutcomeRevealed
}

// TapCount reports the pending tap count, expiring a stale window first.
func (g *Gate) TapCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.taps > 0 && g.now().After(g.deadline) {
		g.taps = 0
	}
	return g.taps
}
