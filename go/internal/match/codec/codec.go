// Package codec converts match state to and from its stored form. Decoding is
// tolerant of every snapshot shape the application has ever written;
// encoding always produces a snapshot that satisfies the state invariants.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mcdev12/sideline/go/internal/match/state"
)

// ErrMalformedPayload is returned by Decode when the input is not a JSON object.
var ErrMalformedPayload = errors.New("malformed match payload")

// Snapshot is the canonical stored form of a match.
type Snapshot struct {
	Version           int               `json:"v"`
	ActiveTeam        int               `json:"activeTeam"`
	Teams             []TeamSnapshot    `json:"teams"`
	MainClock         CountdownSnapshot `json:"mainClock"`
	TimeoutClock      TimeoutSnapshot   `json:"timeoutClock"`
	IntermissionClock CountdownSnapshot `json:"intermissionClock"`
	Settings          SettingsSnapshot  `json:"settings"`
	Flagged           bool              `json:"flagged"`
	Profile           ProfileSnapshot   `json:"profile"`
}

// TeamSnapshot is the stored form of one team.
type TeamSnapshot struct {
	Name              string `json:"name"`
	Score             int    `json:"score"`
	Downs             int    `json:"downs"`
	MandatoryRotation int    `json:"mandatoryRotation"`
	RushesRemaining   int    `json:"rushesRemaining"`
	TimeoutsRemaining int    `json:"timeoutsRemaining"`
}

// CountdownSnapshot is the stored form of a countdown. The anchor fields are
// null whenever the countdown is stopped.
type CountdownSnapshot struct {
	Running          bool   `json:"running"`
	SecondsRemaining int    `json:"secondsRemaining"`
	StartedAtMs      *int64 `json:"startedAtMs"`
	SecondsAtStart   *int   `json:"secondsAtStart"`
}

// TimeoutSnapshot adds the calling team to a countdown.
type TimeoutSnapshot struct {
	CountdownSnapshot
	TeamIndex *int `json:"teamIndex"`
}

// SettingsSnapshot is the stored form of the period lengths.
type SettingsSnapshot struct {
	SegmentLengthSeconds      int `json:"segmentLengthSeconds"`
	IntermissionLengthSeconds int `json:"intermissionLengthSeconds"`
}

// ProfileSnapshot is the stored form of the owner profile.
type ProfileSnapshot struct {
	FirstName string  `json:"firstName"`
	TeamName  string  `json:"teamName"`
	City      string  `json:"city"`
	Province  string  `json:"province"`
	League    string  `json:"league"`
	PhotoData *string `json:"photoData"`
}

// Serialize normalizes s and converts it to its stored form.
func Serialize(s state.State) Snapshot {
	n := Normalize(s)

	teams := make([]TeamSnapshot, len(n.Teams))
	for i, t := range n.Teams {
		teams[i] = TeamSnapshot{
			Name:              t.Name,
			Score:             t.Score,
			Downs:             t.Downs,
			MandatoryRotation: t.MandatoryRotation,
			RushesRemaining:   t.RushesRemaining,
			TimeoutsRemaining: t.TimeoutsRemaining,
		}
	}

	snap := Snapshot{
		Version:           SchemaVersion,
		ActiveTeam:        n.ActiveTeam,
		Teams:             teams,
		MainClock:         countdownSnapshot(n.MainClock),
		TimeoutClock:      TimeoutSnapshot{CountdownSnapshot: countdownSnapshot(n.TimeoutClock.Countdown)},
		IntermissionClock: countdownSnapshot(n.IntermissionClock),
		Settings: SettingsSnapshot{
			SegmentLengthSeconds:      n.Settings.SegmentLengthSeconds,
			IntermissionLengthSeconds: n.Settings.IntermissionLengthSeconds,
		},
		Flagged: n.Flagged,
		Profile: ProfileSnapshot{
			FirstName: n.Profile.FirstName,
			TeamName:  n.Profile.TeamName,
			City:      n.Profile.City,
			Province:  n.Profile.Province,
			League:    n.Profile.League,
		},
	}
	if n.TimeoutClock.TeamIndex != nil {
		idx := *n.TimeoutClock.TeamIndex
		snap.TimeoutClock.TeamIndex = &idx
	}
	if n.Profile.PhotoData != "" {
		photo := n.Profile.PhotoData
		snap.Profile.PhotoData = &photo
	}
	return snap
}

func countdownSnapshot(c state.Countdown) CountdownSnapshot {
	out := CountdownSnapshot{Running: c.Running, SecondsRemaining: c.SecondsRemaining}
	if c.Anchor != nil {
		startedAt := c.Anchor.StartedAtMs
		atStart := c.Anchor.SecondsAtStart
		out.StartedAtMs = &startedAt
		out.SecondsAtStart = &atStart
	}
	return out
}

// Marshal serializes s to its canonical JSON encoding.
func Marshal(s state.State) ([]byte, error) {
	data, err := json.Marshal(Serialize(s))
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// Inflate rebuilds a state from any decoded snapshot shape. Missing or
// malformed fields take their defaults; the result is always normalized.
func Inflate(raw any) state.State {
	st := state.Default()
	obj, ok := raw.(map[string]any)
	if !ok {
		return st
	}
	for _, d := range decoders {
		d.decode(obj, &st)
	}
	return Normalize(st)
}

// Decode parses a stored snapshot and inflates it. Only input that is not a
// JSON object is rejected.
func Decode(data []byte) (state.State, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return state.Default(), fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if _, ok := raw.(map[string]any); !ok {
		return state.Default(), fmt.Errorf("%w: expected object, got %T", ErrMalformedPayload, raw)
	}
	return Inflate(raw), nil
}

// ToMap returns the canonical snapshot of s as generic JSON values, the shape
// path-based field transactions operate on.
func ToMap(s state.State) (map[string]any, error) {
	data, err := Marshal(s)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return out, nil
}
