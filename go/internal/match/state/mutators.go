package state

import (
	"strings"
	"time"
)

// Mutation is a change applied to a state at a given instant. Mutations must
// be pure: they may be re-run against a fresh copy when a remote transaction
// retries.
type Mutation func(s *State, now time.Time) error

// StartMainClock stops the timeout and intermission clocks and runs the main
// clock from its current remaining seconds.
func (s *State) StartMainClock(now time.Time) {
	ReconcileAll(now, s)
	s.clearTimeout()
	s.IntermissionClock.clear()
	s.MainClock.start(now, s.MainClock.SecondsRemaining)
}

// PauseMainClock stops the main clock at its reconciled remaining seconds.
func (s *State) PauseMainClock(now time.Time) {
	Reconcile(now, &s.MainClock)
	s.MainClock.stop()
}

// ToggleMainClock pauses a running main clock and starts a stopped one.
func (s *State) ToggleMainClock(now time.Time) {
	Reconcile(now, &s.MainClock)
	if s.MainClock.Running {
		s.PauseMainClock(now)
		return
	}
	s.StartMainClock(now)
}

// StartTimeout charges team a timeout and runs the timeout clock. The state is
// left untouched when the team has none left or a timeout is already running.
func (s *State) StartTimeout(now time.Time, team int) error {
	if !ValidTeam(team) {
		return ErrInvalidTeam
	}
	if s.Teams[team].TimeoutsRemaining <= 0 {
		return ErrNoTimeoutsRemaining
	}

	timeout := s.TimeoutClock.Countdown.clone()
	Reconcile(now, &timeout)
	if timeout.Running {
		return ErrTimeoutRunning
	}

	ReconcileAll(now, s)

	s.Teams[team].TimeoutsRemaining--
	s.MainClock.stop()
	s.IntermissionClock.clear()

	idx := team
	s.TimeoutClock.TeamIndex = &idx
	s.TimeoutClock.start(now, TimeoutDurationSeconds)
	return nil
}

// StartIntermission stops the other clocks, resets both teams to the per-half
// defaults, rewinds the main clock to a full segment and runs the
// intermission clock.
func (s *State) StartIntermission(now time.Time) {
	ReconcileAll(now, s)
	s.clearTimeout()
	s.MainClock.stop()

	for i := range s.Teams {
		t := &s.Teams[i]
		t.Downs = DefaultDowns
		t.MandatoryRotation = DefaultMandatoryRotation
		t.RushesRemaining = DefaultRushes
		t.TimeoutsRemaining = DefaultTimeouts
	}

	s.MainClock.SecondsRemaining = s.segmentLength()
	s.IntermissionClock.start(now, s.intermissionLength())
}

// AdvancePlay records a play by the active team. A normal play counts the
// rotation down; a mandatory play resets it. Both advance the down, wrapping
// after the fourth. A normal play made when the rotation was already due
// raises the flag, which is reported in the return value.
func (s *State) AdvancePlay(kind PlayKind) bool {
	t := &s.Teams[s.activeIndex()]
	t.Downs = WrapDown(t.Downs + 1)

	switch kind {
	case MandatoryPlay:
		t.MandatoryRotation = DefaultMandatoryRotation
		return false
	default:
		due := ClampRotation(t.MandatoryRotation) == 0
		t.MandatoryRotation = ClampRotation(t.MandatoryRotation - 1)
		if due {
			s.Flagged = true
		}
		return due
	}
}

// RecordTurnover hands possession to the other team. Both teams start a
// fresh series and any timeout is cleared.
func (s *State) RecordTurnover() {
	cur := s.activeIndex()
	next := Other(cur)
	for _, idx := range []int{cur, next} {
		s.Teams[idx].Downs = DefaultDowns
		s.Teams[idx].MandatoryRotation = DefaultMandatoryRotation
	}
	s.ActiveTeam = next
	s.clearTimeout()
}

// AddScore adds delta to a team's score, never going below zero.
func (s *State) AddScore(team, delta int) error {
	if !ValidTeam(team) {
		return ErrInvalidTeam
	}
	s.Teams[team].Score = ClampScore(s.Teams[team].Score + delta)
	return nil
}

// AdjustDowns moves a team's down by delta, clamped to 1..4.
func (s *State) AdjustDowns(team, delta int) error {
	return s.adjust(team, func(t *Team) { t.Downs = ClampDown(t.Downs + delta) })
}

// AdjustRotation moves a team's rotation counter by delta, clamped to 0..2.
func (s *State) AdjustRotation(team, delta int) error {
	return s.adjust(team, func(t *Team) { t.MandatoryRotation = ClampRotation(t.MandatoryRotation + delta) })
}

// AdjustTimeouts moves a team's remaining timeouts by delta, floor zero.
func (s *State) AdjustTimeouts(team, delta int) error {
	return s.adjust(team, func(t *Team) { t.TimeoutsRemaining = clampNonNegative(t.TimeoutsRemaining + delta) })
}

// AdjustRushes moves a team's remaining rushes by delta, floor zero.
func (s *State) AdjustRushes(team, delta int) error {
	return s.adjust(team, func(t *Team) { t.RushesRemaining = clampNonNegative(t.RushesRemaining + delta) })
}

// ResetDowns puts a team back on first down.
func (s *State) ResetDowns(team int) error {
	return s.adjust(team, func(t *Team) { t.Downs = DefaultDowns })
}

// SetTeamName renames a team. Blank names are ignored.
func (s *State) SetTeamName(team int, name string) error {
	name = strings.TrimSpace(name)
	return s.adjust(team, func(t *Team) {
		if name != "" {
			t.Name = name
		}
	})
}

// SetMainClockSeconds sets the main clock and leaves it stopped.
func (s *State) SetMainClockSeconds(seconds int) {
	s.MainClock.stop()
	s.MainClock.SecondsRemaining = clampNonNegative(seconds)
}

// SetFlagged sets or clears the rotation flag.
func (s *State) SetFlagged(flagged bool) {
	s.Flagged = flagged
}

// SetSettings replaces the period lengths; non-positive values keep the
// current setting.
func (s *State) SetSettings(settings Settings) {
	if settings.SegmentLengthSeconds > 0 {
		s.Settings.SegmentLengthSeconds = settings.SegmentLengthSeconds
	}
	if settings.IntermissionLengthSeconds > 0 {
		s.Settings.IntermissionLengthSeconds = settings.IntermissionLengthSeconds
	}
}

func (s *State) adjust(team int, fn func(t *Team)) error {
	if !ValidTeam(team) {
		return ErrInvalidTeam
	}
	fn(&s.Teams[team])
	return nil
}

func (s *State) clearTimeout() {
	s.TimeoutClock.clear()
	s.TimeoutClock.TeamIndex = nil
}

func (s *State) activeIndex() int {
	if ValidTeam(s.ActiveTeam) {
		return s.ActiveTeam
	}
	s.ActiveTeam = 0
	return 0
}

func (s *State) segmentLength() int {
	if s.Settings.SegmentLengthSeconds > 0 {
		return s.Settings.SegmentLengthSeconds
	}
	return DefaultSegmentLengthSeconds
}

func (s *State) intermissionLength() int {
	if s.Settings.IntermissionLengthSeconds > 0 {
		return s.Settings.IntermissionLengthSeconds
	}
	return DefaultIntermissionLengthSeconds
}
