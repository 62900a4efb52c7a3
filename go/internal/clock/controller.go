package clock

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Clock is the time capability the controller depends on.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) clockwork.Timer
}

// state is the controller's record of the last authoritative snapshot.
// lastUpdate is the instant from which the active player's elapsed time is
// measured; it may lie in the future when a transit delay was applied.
type state struct {
	Snapshot
	lastUpdate time.Time
}

// Controller tracks both players' remaining time for one game. It absorbs
// authoritative snapshots and drives a single self-rescheduling wake that
// reports the active player's time to a Listener.
type Controller struct {
	// notifyMu orders listener delivery against state replacement. It is
	// always taken before mu. Listeners must not call SetClock, StopClock or
	// Close from inside a notification.
	notifyMu sync.Mutex
	mu       sync.Mutex
	clock    Clock
	listener Listener

	state              state
	maxOvertimeMinutes int

	// wake is the single pending tick, nil when idle. wakeGen identifies the
	// current arm cycle so a callback that lost the race with a cancel is dropped.
	wake    clockwork.Timer
	wakeGen uint64

	closed bool
}

// New builds a controller from the initial snapshot and arms the scheduler if
// a player is active. The game is assumed to be in progress.
func New(clk Clock, snap Snapshot, l Listener) (*Controller, error) {
	if clk == nil {
		panic("clock: nil Clock")
	}
	if l == nil {
		panic("clock: nil Listener")
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		clock:    clk,
		listener: l,
	}

	c.mu.Lock()
	c.applyLocked(StatusPlaying, snap, 0)
	c.mu.Unlock()

	return c, nil
}

// SetClock replaces the clock state with snap. When status is StatusGameOver
// no player is marked active and no further ticks fire. delay back-dates the
// snapshot by pushing the reference instant forward by that much transit time.
func (c *Controller) SetClock(status GameStatus, snap Snapshot, delay Centis) error {
	if err := snap.Validate(); err != nil {
		return err
	}

	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.applyLocked(status, snap, delay)
	return nil
}

func (c *Controller) applyLocked(status GameStatus, snap Snapshot, delay Centis) {
	c.cancelWakeLocked()

	now := c.clock.Now()
	asOf := snap.AsOf
	if asOf.IsZero() {
		asOf = now
	}
	snap.AsOf = asOf
	if status == StatusGameOver {
		snap.Active = NoPlayer
	}

	c.state = state{
		Snapshot:   snap,
		lastUpdate: asOf.Add(delay.Millis().Duration()),
	}

	log.Debug().
		Int64("p0_ms", int64(snap.P0)).
		Int64("p1_ms", int64(snap.P1)).
		Str("active", snap.Active.String()).
		Str("status", status.String()).
		Int64("delay_centis", int64(delay)).
		Msg("clock set")

	if snap.Active == NoPlayer {
		return
	}

	extra := MillisFromDuration(c.state.lastUpdate.Sub(now))
	if extra < 0 {
		extra = 0
	}
	c.scheduleTickLocked(c.millisOfLocked(snap.Active, now), extra)
}

// SetMaxOvertime sets how far below zero either player's time may run.
// Stored state is left alone; the new floor applies from the next read.
func (c *Controller) SetMaxOvertime(minutes int) error {
	if minutes < 0 {
		return ErrInvalidOvertime
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.maxOvertimeMinutes = minutes
	log.Debug().Int("max_overtime_minutes", minutes).Msg("max overtime set")
	return nil
}

// MaxOvertime returns the configured overtime allowance in minutes.
func (c *Controller) MaxOvertime() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxOvertimeMinutes
}

// StopClock freezes the active player's time at its current value and cancels
// the pending tick. It returns the elapsed time that was charged, or false
// when nobody was active.
func (c *Controller) StopClock() (Millis, bool) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	active := c.state.Active
	if active == NoPlayer {
		return 0, false
	}

	now := c.clock.Now()
	elapsed := c.elapsedLocked(now)
	c.state.set(active, max(c.floorLocked(), c.state.Of(active)-elapsed))
	c.state.Active = NoPlayer
	c.state.AsOf = now
	c.state.lastUpdate = now
	c.cancelWakeLocked()

	log.Debug().
		Str("player", active.String()).
		Int64("elapsed_ms", int64(elapsed)).
		Int64("remaining_ms", int64(c.state.Of(active))).
		Msg("clock stopped")

	return elapsed, true
}

// Elapsed returns the time elapsed since the last snapshot, clamped so that
// it never implies a remaining time below the overtime floor.
func (c *Controller) Elapsed() Millis {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsedLocked(c.clock.Now())
}

func (c *Controller) elapsedLocked(now time.Time) Millis {
	elapsed := MillisFromDuration(now.Sub(c.state.lastUpdate))
	if active := c.state.Active; active != NoPlayer {
		elapsed = min(elapsed, c.state.Of(active)-c.floorLocked())
	}
	return max(elapsed, 0)
}

// MillisOf returns p's remaining time right now: computed live for the active
// player, the stored value otherwise. It panics if p is not a seat.
func (c *Controller) MillisOf(p Player) Millis {
	if !p.Valid() {
		panic("clock: MillisOf called with " + p.String())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.millisOfLocked(p, c.clock.Now())
}

func (c *Controller) millisOfLocked(p Player, now time.Time) Millis {
	if c.state.Active != p {
		return c.state.Of(p)
	}
	return max(c.floorLocked(), c.state.Of(p)-c.elapsedLocked(now))
}

// Active returns the player currently spending time, if any.
func (c *Controller) Active() (Player, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Active, c.state.Active != NoPlayer
}

// Snapshot returns both players' live remaining time as of now.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	return Snapshot{
		P0:     c.millisOfLocked(P0, now),
		P1:     c.millisOfLocked(P1, now),
		Active: c.state.Active,
		AsOf:   now,
	}
}

// Close cancels the pending tick. Reads keep working; SetClock returns ErrClosed.
func (c *Controller) Close() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelWakeLocked()
	c.closed = true
}

func (c *Controller) floorLocked() Millis {
	return -Millis(c.maxOvertimeMinutes) * 60000
}
