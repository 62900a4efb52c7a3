package clock

import (
	"time"

	"github.com/rs/zerolog/log"
)

const (
	finePeriod   Millis = 100
	coarsePeriod Millis = 1000

	// wakeEpsilon puts a wake just past the instant the displayed value changes.
	wakeEpsilon Millis = 1
)

// nextWake returns how long to sleep before the next tick for a player with t
// remaining. The sleep ends just after the formatted value would change, and
// never later than the instant t reaches floor.
func nextWake(t, floor, extraDelay Millis) time.Duration {
	period := coarsePeriod
	if ShowTenths(t) {
		period = finePeriod
	}

	var wait Millis
	if t >= 0 {
		wait = t%period + wakeEpsilon
	} else {
		// Negative values round away from zero, so the display already
		// changes one millisecond past an exact multiple of period.
		wait = (period-(-t)%period)%period + wakeEpsilon
	}
	if untilFloor := t - floor; untilFloor > 0 && wait > untilFloor {
		wait = untilFloor
	}

	return (wait + extraDelay).Duration()
}

// scheduleTickLocked replaces any pending wake with one sized for t.
func (c *Controller) scheduleTickLocked(t, extraDelay Millis) {
	c.cancelWakeLocked()

	c.wakeGen++
	gen := c.wakeGen
	d := nextWake(t, c.floorLocked(), extraDelay)
	c.wake = c.clock.AfterFunc(d, func() { c.tick(gen) })

	log.Debug().
		Str("player", c.state.Active.String()).
		Int64("remaining_ms", int64(t)).
		Dur("wake_in", d).
		Msg("scheduled clock tick")
}

// cancelWakeLocked stops the pending wake, if any. A callback already running
// for it sees wake == nil and returns without effect.
func (c *Controller) cancelWakeLocked() {
	if c.wake == nil {
		return
	}
	c.wake.Stop()
	c.wake = nil
}

// tick recomputes the active player's time, re-arms unless the floor has been
// reached, and then notifies the listener outside the state lock. notifyMu is
// held throughout, so a SetClock or StopClock either lands before the wake is
// checked (and the wake is dropped) or waits until delivery has finished.
func (c *Controller) tick(gen uint64) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.wake == nil || gen != c.wakeGen {
		c.mu.Unlock()
		return
	}
	c.wake = nil

	active := c.state.Active
	if active == NoPlayer {
		c.mu.Unlock()
		return
	}

	floor := c.floorLocked()
	t := c.millisOfLocked(active, c.clock.Now())
	timedOut := t == floor
	if !timedOut {
		c.scheduleTickLocked(t, 0)
	}
	l := c.listener
	c.mu.Unlock()

	l.NotifyTick(active, t)
	if timedOut {
		log.Info().
			Str("player", active.String()).
			Int64("floor_ms", int64(floor)).
			Msg("clock timed out")
		l.NotifyTimeout(active)
	}
}
