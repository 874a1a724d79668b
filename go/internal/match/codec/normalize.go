package codec

import "github.com/mcdev12/sideline/go/internal/match/state"

// Normalize clamps every field of s into its legal range and repairs the
// countdown invariants. It is idempotent.
func Normalize(s state.State) state.State {
	n := s.Clone()

	n.ActiveTeam = state.ClampTeam(n.ActiveTeam)

	for i := range n.Teams {
		t := &n.Teams[i]
		t.Score = state.ClampScore(t.Score)
		t.Downs = state.ClampDown(t.Downs)
		t.MandatoryRotation = state.ClampRotation(t.MandatoryRotation)
		t.RushesRemaining = state.ClampCount(t.RushesRemaining)
		t.TimeoutsRemaining = state.ClampCount(t.TimeoutsRemaining)
	}

	defaults := state.DefaultSettings()
	if n.Settings.SegmentLengthSeconds <= 0 {
		n.Settings.SegmentLengthSeconds = defaults.SegmentLengthSeconds
	}
	n.Settings.SegmentLengthSeconds = state.ClampCount(n.Settings.SegmentLengthSeconds)
	if n.Settings.IntermissionLengthSeconds <= 0 {
		n.Settings.IntermissionLengthSeconds = defaults.IntermissionLengthSeconds
	}
	n.Settings.IntermissionLengthSeconds = state.ClampCount(n.Settings.IntermissionLengthSeconds)

	normalizeCountdown(&n.MainClock)
	normalizeCountdown(&n.TimeoutClock.Countdown)
	normalizeCountdown(&n.IntermissionClock)
	if n.TimeoutClock.TeamIndex != nil {
		idx := state.ClampTeam(*n.TimeoutClock.TeamIndex)
		n.TimeoutClock.TeamIndex = &idx
	}

	keepLatestRunning(&n)

	n.Profile = n.Profile.Sanitized()
	return n
}

func normalizeCountdown(c *state.Countdown) {
	c.SecondsRemaining = state.ClampCount(c.SecondsRemaining)
	if !c.Running {
		c.Anchor = nil
		return
	}
	if c.Anchor == nil || c.Anchor.StartedAtMs <= 0 {
		c.Running = false
		c.Anchor = nil
		return
	}
	c.Anchor.SecondsAtStart = state.ClampCount(c.Anchor.SecondsAtStart)
	if c.Anchor.SecondsAtStart < c.SecondsRemaining {
		c.Anchor.SecondsAtStart = c.SecondsRemaining
	}
}

// keepLatestRunning stops all but the most recently started countdown. Ties
// keep the main clock, then the timeout, then the intermission.
func keepLatestRunning(s *state.State) {
	clocks := []*state.Countdown{&s.MainClock, &s.TimeoutClock.Countdown, &s.IntermissionClock}

	var winner *state.Countdown
	for _, c := range clocks {
		if !c.Running {
			continue
		}
		if winner == nil || c.Anchor.StartedAtMs > winner.Anchor.StartedAtMs {
			winner = c
		}
	}
	for _, c := range clocks {
		if c.Running && c != winner {
			c.Running = false
			c.Anchor = nil
		}
	}
}
