package state

import "time"

// Reconcile recomputes a running countdown's remaining seconds from its
// anchor and now. It reports whether c changed. A running countdown without a
// usable anchor is stopped, and a countdown that reaches zero stops and drops
// its anchor.
func Reconcile(now time.Time, c *Countdown) bool {
	if c == nil || !c.Running {
		return false
	}

	if c.Anchor == nil || c.Anchor.StartedAtMs <= 0 {
		c.Running = false
		c.Anchor = nil
		return true
	}

	changed := false
	if c.Anchor.SecondsAtStart < 0 {
		c.Anchor.SecondsAtStart = 0
		changed = true
	}

	elapsed := int64(0)
	if diff := now.UnixMilli() - c.Anchor.StartedAtMs; diff > 0 {
		elapsed = diff / 1000
	}

	remaining := int64(c.Anchor.SecondsAtStart) - elapsed
	if remaining < 0 {
		remaining = 0
	}

	if c.SecondsRemaining != int(remaining) {
		c.SecondsRemaining = int(remaining)
		changed = true
	}

	if remaining == 0 {
		c.Running = false
		c.Anchor = nil
		changed = true
	}

	return changed
}

// ReconcileAll reconciles the three countdowns and tidies expired ones: a
// stopped timeout at zero forgets its team, and stopped countdowns at zero
// carry no anchor.
func ReconcileAll(now time.Time, s *State) bool {
	changed := false
	if Reconcile(now, &s.MainClock) {
		changed = true
	}
	if Reconcile(now, &s.TimeoutClock.Countdown) {
		changed = true
	}
	if Reconcile(now, &s.IntermissionClock) {
		changed = true
	}

	if !s.TimeoutClock.Running && s.TimeoutClock.SecondsRemaining <= 0 {
		if s.TimeoutClock.SecondsRemaining != 0 {
			s.TimeoutClock.SecondsRemaining = 0
			changed = true
		}
		if s.TimeoutClock.TeamIndex != nil {
			s.TimeoutClock.TeamIndex = nil
			changed = true
		}
		if s.TimeoutClock.Anchor != nil {
			s.TimeoutClock.Anchor = nil
			changed = true
		}
	}

	if !s.IntermissionClock.Running && s.IntermissionClock.SecondsRemaining <= 0 {
		if s.IntermissionClock.SecondsRemaining != 0 {
			s.IntermissionClock.SecondsRemaining = 0
			changed = true
		}
		if s.IntermissionClock.Anchor != nil {
			s.IntermissionClock.Anchor = nil
			changed = true
		}
	}

	return changed
}

// start puts c into the running state anchored at now with seconds left.
func (c *Countdown) start(now time.Time, seconds int) {
	if seconds < 0 {
		seconds = 0
	}
	c.SecondsRemaining = seconds
	c.Running = true
	c.Anchor = &Anchor{StartedAtMs: now.UnixMilli(), SecondsAtStart: seconds}
}

// stop freezes c at its current remaining seconds.
func (c *Countdown) stop() {
	c.Running = false
	c.Anchor = nil
}

// clear stops c and zeroes it.
func (c *Countdown) clear() {
	c.stop()
	c.SecondsRemaining = 0
}
