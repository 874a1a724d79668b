package codec

import (
	"encoding/json"
	"fmt"

	"github.com/mcdev12/sideline/go/internal/match/state"
)

// compactSnapshot uses the abbreviated field names. It is written only when
// the canonical encoding does not fit in storage, and Inflate reads it back
// through the same key table.
type compactSnapshot struct {
	Version      int               `json:"v"`
	ActiveTeam   int               `json:"a"`
	Teams        []compactTeam     `json:"t"`
	Main         compactMainClock  `json:"g"`
	Timeout      compactCountdown  `json:"to"`
	Intermission compactCountdown  `json:"h"`
	Flagged      bool              `json:"f"`
	Settings     compactSettings   `json:"cfg"`
	Profile      map[string]string `json:"p,omitempty"`
}

type compactTeam struct {
	Name     string `json:"n"`
	Score    int    `json:"s"`
	Downs    int    `json:"d"`
	Rotation int    `json:"g"`
	Rushes   int    `json:"r"`
	Timeouts int    `json:"o"`
}

type compactMainClock struct {
	Seconds        int    `json:"s"`
	Running        bool   `json:"r"`
	SecondsAtStart *int   `json:"sa"`
	StartedAtMs    *int64 `json:"ms"`
}

type compactCountdown struct {
	Running          bool   `json:"r"`
	SecondsRemaining int    `json:"sr"`
	SecondsAtStart   *int   `json:"sa"`
	StartedAtMs      *int64 `json:"ms"`
	Team             *int   `json:"tm,omitempty"`
}

type compactSettings struct {
	Segment      int `json:"sg"`
	Intermission int `json:"im"`
}

// MarshalCompact encodes s with abbreviated field names, omitting empty
// profile fields.
func MarshalCompact(s state.State) ([]byte, error) {
	snap := Serialize(s)

	out := compactSnapshot{
		Version:    snap.Version,
		ActiveTeam: snap.ActiveTeam,
		Main: compactMainClock{
			Seconds:        snap.MainClock.SecondsRemaining,
			Running:        snap.MainClock.Running,
			SecondsAtStart: snap.MainClock.SecondsAtStart,
			StartedAtMs:    snap.MainClock.StartedAtMs,
		},
		Timeout:      compactClock(snap.TimeoutClock.CountdownSnapshot),
		Intermission: compactClock(snap.IntermissionClock),
		Flagged:      snap.Flagged,
		Settings: compactSettings{
			Segment:      snap.Settings.SegmentLengthSeconds,
			Intermission: snap.Settings.IntermissionLengthSeconds,
		},
	}
	out.Timeout.Team = snap.TimeoutClock.TeamIndex

	for _, t := range snap.Teams {
		out.Teams = append(out.Teams, compactTeam{
			Name:     t.Name,
			Score:    t.Score,
			Downs:    t.Downs,
			Rotation: t.MandatoryRotation,
			Rushes:   t.RushesRemaining,
			Timeouts: t.TimeoutsRemaining,
		})
	}

	profile := map[string]string{}
	for key, val := range map[string]string{
		"fn": snap.Profile.FirstName,
		"tn": snap.Profile.TeamName,
		"c":  snap.Profile.City,
		"pv": snap.Profile.Province,
		"lg": snap.Profile.League,
	} {
		if val != "" {
			profile[key] = val
		}
	}
	if snap.Profile.PhotoData != nil {
		profile["ph"] = *snap.Profile.PhotoData
	}
	if len(profile) > 0 {
		out.Profile = profile
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal compact snapshot: %w", err)
	}
	return data, nil
}

func compactClock(c CountdownSnapshot) compactCountdown {
	return compactCountdown{
		Running:          c.Running,
		SecondsRemaining: c.SecondsRemaining,
		SecondsAtStart:   c.SecondsAtStart,
		StartedAtMs:      c.StartedAtMs,
	}
}
