package match

import (
	"context"
	"fmt"
	"time"

	"github.com/mcdev12/sideline/go/internal/match/state"
)

func (a *App) StartClock(ctx context.Context) (state.State, error) {
	return a.Mutate(ctx, "start_clock", func(s *state.State, now time.Time) error {
		s.StartMainClock(now)
		return nil
	})
}

func (a *App) PauseClock(ctx context.Context) (state.State, error) {
	return a.Mutate(ctx, "pause_clock", func(s *state.State, now time.Time) error {
		s.PauseMainClock(now)
		return nil
	})
}

func (a *App) ToggleClock(ctx context.Context) (state.State, error) {
	return a.Mutate(ctx, "toggle_clock", func(s *state.State, now time.Time) error {
		s.ToggleMainClock(now)
		return nil
	})
}

// StartTimeout charges team a timeout and runs the timeout clock.
func (a *App) StartTimeout(ctx context.Context, team int) (state.State, error) {
	return a.Mutate(ctx, "start_timeout", func(s *state.State, now time.Time) error {
		return s.StartTimeout(now, team)
	})
}

func (a *App) StartIntermission(ctx context.Context) (state.State, error) {
	return a.Mutate(ctx, "start_intermission", func(s *state.State, now time.Time) error {
		s.StartIntermission(now)
		return nil
	})
}

// AdvancePlay records a play by the active team.
func (a *App) AdvancePlay(ctx context.Context, kind state.PlayKind) (state.State, error) {
	return a.Mutate(ctx, kind.String()+"_play", func(s *state.State, _ time.Time) error {
		s.AdvancePlay(kind)
		return nil
	})
}

func (a *App) RecordTurnover(ctx context.Context) (state.State, error) {
	return a.Mutate(ctx, "turnover", func(s *state.State, _ time.Time) error {
		s.RecordTurnover()
		return nil
	})
}

// AddScore changes a team's score by delta. Connected writers commit only
// that field so concurrent score changes from other referees are kept.
func (a *App) AddScore(ctx context.Context, team, delta int) (state.State, error) {
	if !state.ValidTeam(team) {
		return a.State(), fmt.Errorf("score: %w", state.ErrInvalidTeam)
	}
	path := fmt.Sprintf("teams/%d/score", team)
	return a.mutateField(ctx, "score", path,
		func(current any) any {
			f, _ := current.(float64)
			return int(f) + delta
		},
		func(s *state.State, _ time.Time) error {
			return s.AddScore(team, delta)
		},
	)
}

func (a *App) SetFlagged(ctx context.Context, flagged bool) (state.State, error) {
	return a.Mutate(ctx, "set_flagged", func(s *state.State, _ time.Time) error {
		s.SetFlagged(flagged)
		return nil
	})
}

// AdjustTeam applies one of the per-team counter adjustments.
func (a *App) AdjustTeam(ctx context.Context, field string, team, delta int) (state.State, error) {
	var fn func(s *state.State) error
	switch field {
	case "downs":
		fn = func(s *state.State) error { return s.AdjustDowns(team, delta) }
	case "rotation":
		fn = func(s *state.State) error { return s.AdjustRotation(team, delta) }
	case "timeouts":
		fn = func(s *state.State) error { return s.AdjustTimeouts(team, delta) }
	case "rushes":
		fn = func(s *state.State) error { return s.AdjustRushes(team, delta) }
	default:
		return a.State(), fmt.Errorf("unknown team field %q", field)
	}
	return a.Mutate(ctx, "adjust_"+field, func(s *state.State, _ time.Time) error {
		return fn(s)
	})
}

func (a *App) SetTeamName(ctx context.Context, team int, name string) (state.State, error) {
	return a.Mutate(ctx, "set_team_name", func(s *state.State, _ time.Time) error {
		return s.SetTeamName(team, name)
	})
}

func (a *App) SetMainClockSeconds(ctx context.Context, seconds int) (state.State, error) {
	return a.Mutate(ctx, "set_clock", func(s *state.State, _ time.Time) error {
		s.SetMainClockSeconds(seconds)
		return nil
	})
}

func (a *App) ApplyProfile(ctx context.Context, patch state.ProfilePatch) (state.State, error) {
	return a.Mutate(ctx, "apply_profile", func(s *state.State, _ time.Time) error {
		s.ApplyProfile(patch)
		return nil
	})
}
