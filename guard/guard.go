// Package guard decides when the hidden chat surface is torn down. It is a
// small state machine over Dormant and Active: activity events push the
// deadlines forward, and an idle timeout, a per-room two-stage timer, a
// visibility loss, a page unload or an explicit exit all trigger panic,
// wiping keys and session state and returning the UI to its cover state.
package guard

import (
	"context"
	"sync"
	"time"
)

// State is the controller's visibility state.
type State int

const (
	// Dormant means the chat surface is hidden and the cover UI is shown.
	Dormant State = iota
	// Active means the chat surface is revealed.
	Active
)

// Timing constants. The coarse idle timeout covers the whole chat surface;
// the fine two-stage timer runs only while a room is open.
const (
	IdleTimeout      = 10 * time.Minute
	RoomWarningAfter = 25 * time.Second
	RoomPanicAfter   = 30 * time.Second
	TickInterval     = time.Second
)

// Controller observes activity and fires panic when a trigger condition is
// met. Deadlines are recomputed from the last activity timestamp on every
// tick, so activity events restart the timers without accumulating them.
type Controller struct {
	mu           sync.Mutex
	state        State
	roomID       string
	lastActivity time.Time
	warned       bool

	now       func() time.Time
	onPanic   func()
	onWarning func(visible bool)
}

// Option configures the Controller.
type Option func(*Controller)

// WithClock overrides the time source. Tests drive the timeout scenarios
// through this.
func WithClock(now func() time.Time) Option {
	return func(g *Controller) {
		g.now = now
	}
}

// WithWarningFunc registers the callback that surfaces and hides the
// pre-panic inactivity warning.
func WithWarningFunc(fn func(visible bool)) Option {
	return func(g *Controller) {
		g.onWarning = fn
	}
}

// New creates a Controller in the Dormant state. onPanic performs the
// side-effecting cleanup (purge key store, reset session state); it must be
// idempotent and must not fail loudly.
func New(onPanic func(), opts ...Option) *Controller {
	g := &Controller{
		state:   Dormant,
		now:     time.Now,
		onPanic: onPanic,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// State returns the current state.
func (g *Controller) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// CurrentRoom returns the open room, if any.
func (g *Controller) CurrentRoom() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.roomID, g.roomID != ""
}

// Reveal transitions Dormant -> Active and counts as activity. The disguise
// gate calls this after a successful access check.
func (g *Controller) Reveal() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = Active
	g.lastActivity = g.now()
}

// Activity records a qualifying user event (pointer move, key press, click,
// scroll, touch) and cancels a surfaced warning.
func (g *Controller) Activity() {
	g.mu.Lock()
	if g.state != Active {
		g.mu.Unlock()
		return
	}
	g.lastActivity = g.now()
	fn := g.clearWarningLocked()
	g.mu.Unlock()
	if fn != nil {
		fn(false)
	}
}

// EnterRoom arms the per-room fine timer.
func (g *Controller) EnterRoom(roomID string) {
	g.mu.Lock()
	if g.state != Active {
		g.mu.Unlock()
		return
	}
	g.roomID = roomID
	g.lastActivity = g.now()
	fn := g.clearWarningLocked()
	g.mu.Unlock()
	if fn != nil {
		fn(false)
	}
}

// LeaveRoom disarms the per-room fine timer without leaving chat mode.
func (g *Controller) LeaveRoom() {
	g.mu.Lock()
	g.roomID = ""
	fn := g.clearWarningLocked()
	g.mu.Unlock()
	if fn != nil {
		fn(false)
	}
}

// Tick evaluates the idle deadlines against the current clock. Run calls it
// periodically; tests call it directly with a simulated clock.
func (g *Controller) Tick() {
	g.mu.Lock()
	if g.state != Active {
		g.mu.Unlock()
		return
	}

	idle := g.now().Sub(g.lastActivity)

	if g.roomID != "" && idle >= RoomPanicAfter {
		g.panicLocked()
		return
	}
	if idle >= IdleTimeout {
		g.panicLocked()
		return
	}
	if g.roomID != "" && idle >= RoomWarningAfter && !g.warned {
		g.warned = true
		fn := g.onWarning
		g.mu.Unlock()
		if fn != nil {
			fn(true)
		}
		return
	}
	g.mu.Unlock()
}

// VisibilityHidden fires panic immediately when the tab goes hidden while
// Active. Deliberately stricter than the idle timer: a tab switch is treated
// like a close.
func (g *Controller) VisibilityHidden() {
	g.mu.Lock()
	if g.state != Active {
		g.mu.Unlock()
		return
	}
	g.panicLocked()
}

// Unload fires panic synchronously on page teardown. Best effort: teardown
// may be interrupted by the environment, but the attempt is mandatory.
func (g *Controller) Unload() {
	g.Panic()
}

// Panic wipes everything and returns to Dormant. Idempotent; also the
// handler for the user's explicit exit control.
func (g *Controller) Panic() {
	g.mu.Lock()
	g.panicLocked()
}

// panicLocked runs the panic action and releases the lock. The in-memory
// state reset always succeeds; the cleanup callback swallows its own storage
// errors.
func (g *Controller) panicLocked() {
	g.state = Dormant
	g.roomID = ""
	warned := g.warned
	g.warned = false
	onPanic, onWarning := g.onPanic, g.onWarning
	g.mu.Unlock()

	if warned && onWarning != nil {
		onWarning(false)
	}
	if onPanic != nil {
		onPanic()
	}
}

// clearWarningLocked clears the warning flag and returns the callback to run
// after the lock is released, or nil when no warning was showing. Warning
// sinks may re-enter the controller.
func (g *Controller) clearWarningLocked() func(visible bool) {
	if !g.warned {
		return nil
	}
	g.warned = false
	return g.onWarning
}

// Run drives Tick until ctx is cancelled.
func (g *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Tick()
		}
	}
}
