package codec

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/sideline/go/internal/match/state"
)

var t0 = time.UnixMilli(1_700_000_000_000)

func decodeJSON(t *testing.T, payload string) state.State {
	t.Helper()
	st, err := Decode([]byte(payload))
	require.NoError(t, err)
	return st
}

func sampleStates(t *testing.T) map[string]state.State {
	t.Helper()

	running := state.Default()
	running.StartMainClock(t0)
	running.Teams[0].Score = 13
	running.Flagged = true

	timeout := state.Default()
	require.NoError(t, timeout.StartTimeout(t0, 1))
	timeout.Profile = state.Profile{FirstName: "Sam", League: "Metro", PhotoData: "data:image/png;base64,AAAA"}

	intermission := state.Default()
	intermission.Settings = state.Settings{SegmentLengthSeconds: 1200, IntermissionLengthSeconds: 600}
	intermission.StartIntermission(t0)
	intermission.ActiveTeam = 1

	broken := state.Default()
	broken.ActiveTeam = 7
	broken.Teams[0] = state.Team{Name: "X", Score: -3, Downs: 9, MandatoryRotation: -1, RushesRemaining: -2, TimeoutsRemaining: -1}
	broken.MainClock = state.Countdown{Running: true, SecondsRemaining: 50, Anchor: &state.Anchor{StartedAtMs: 5, SecondsAtStart: 10}}
	broken.TimeoutClock.Countdown = state.Countdown{Running: true, SecondsRemaining: -4}
	broken.IntermissionClock = state.Countdown{SecondsRemaining: 20, Anchor: &state.Anchor{StartedAtMs: 9, SecondsAtStart: 20}}
	broken.Settings = state.Settings{}

	return map[string]state.State{
		"default":      state.Default(),
		"running":      running,
		"timeout":      timeout,
		"intermission": intermission,
		"broken":       broken,
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	for name, st := range sampleStates(t) {
		t.Run(name, func(t *testing.T) {
			first, err := json.Marshal(Serialize(st))
			require.NoError(t, err)

			inflated, err := Decode(first)
			require.NoError(t, err)

			second, err := json.Marshal(Serialize(inflated))
			require.NoError(t, err)
			assert.JSONEq(t, string(first), string(second))
		})
	}
}

func TestSerializeRoundTripSaturatedScore(t *testing.T) {
	first := decodeJSON(t, `{"teams":[{"score":3000000000},{"score":7}]}`)
	encoded, err := Marshal(first)
	require.NoError(t, err)

	second, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, math.MaxInt32, second.Teams[0].Score)
	assert.Equal(t, 7, second.Teams[1].Score)
	assert.Equal(t, Serialize(first), Serialize(second))
}

func TestSerializeRepairsInvariants(t *testing.T) {
	snap := Serialize(sampleStates(t)["broken"])

	assert.Equal(t, 1, snap.ActiveTeam)
	assert.Equal(t, TeamSnapshot{Name: "X", Downs: 4}, snap.Teams[0])
	assert.True(t, snap.MainClock.Running)
	require.NotNil(t, snap.MainClock.SecondsAtStart)
	assert.Equal(t, 50, *snap.MainClock.SecondsAtStart)
	assert.False(t, snap.TimeoutClock.Running)
	assert.Zero(t, snap.TimeoutClock.SecondsRemaining)
	assert.Nil(t, snap.IntermissionClock.StartedAtMs)
	assert.Equal(t, state.DefaultSegmentLengthSeconds, snap.Settings.SegmentLengthSeconds)
}

func TestNormalizeKeepsMostRecentlyStartedClock(t *testing.T) {
	s := state.Default()
	s.MainClock = state.Countdown{Running: true, SecondsRemaining: 100, Anchor: &state.Anchor{StartedAtMs: 1000, SecondsAtStart: 100}}
	s.IntermissionClock = state.Countdown{Running: true, SecondsRemaining: 300, Anchor: &state.Anchor{StartedAtMs: 2000, SecondsAtStart: 300}}

	n := Normalize(s)

	assert.Equal(t, 1, n.RunningCount())
	assert.True(t, n.IntermissionClock.Running)
	assert.False(t, n.MainClock.Running)
	assert.Equal(t, 100, n.MainClock.SecondsRemaining)
	assert.Nil(t, n.MainClock.Anchor)
	assert.True(t, s.MainClock.Running, "input is not modified")
}

func TestInflateCompactLegacyPayload(t *testing.T) {
	st := decodeJSON(t, `{"a":1,"t":[{"n":"Home","s":7,"d":2,"g":1,"r":1,"o":2}],"g":{"s":600,"r":false}}`)

	assert.Equal(t, state.Team{Name: "Home", Score: 7, Downs: 2, MandatoryRotation: 1, RushesRemaining: 1, TimeoutsRemaining: 2}, st.Teams[0])
	assert.Equal(t, 600, st.MainClock.SecondsRemaining)
	assert.False(t, st.MainClock.Running)
	assert.Equal(t, 1, st.ActiveTeam)
	assert.Equal(t, state.DefaultTeam("Away"), st.Teams[1])
}

func TestInflateLongNamePayload(t *testing.T) {
	payload := `{
		"activeTeam": 0,
		"teams": [
			{"name": "Hawks", "score": 21, "downs": 3, "girlPlay": 0, "rushes": 1, "timeouts": 2},
			{"name": "Owls", "score": 14, "downs": 1, "girlPlay": 2, "rushes": 2, "timeouts": 3}
		],
		"game": {"seconds": 900, "running": true, "startedAtMs": 1700000000000, "secondsAtStart": 960},
		"timeout": {"running": false, "secondsRemaining": 0, "team": null},
		"halftime": {"running": false, "secondsRemaining": 0},
		"settings": {"segmentLengthSeconds": 1200, "intermissionLengthSeconds": 240},
		"flagged": 1,
		"profile": {"firstName": " Ana ", "team": "Hawks", "provinceCode": "ON", "photo": 42}
	}`
	st := decodeJSON(t, payload)

	assert.Equal(t, "Hawks", st.Teams[0].Name)
	assert.Equal(t, 0, st.Teams[0].MandatoryRotation)
	assert.Equal(t, 14, st.Teams[1].Score)
	assert.True(t, st.MainClock.Running)
	require.NotNil(t, st.MainClock.Anchor)
	assert.Equal(t, int64(1700000000000), st.MainClock.Anchor.StartedAtMs)
	assert.Equal(t, 960, st.MainClock.Anchor.SecondsAtStart)
	assert.Equal(t, 1200, st.Settings.SegmentLengthSeconds)
	assert.Equal(t, 240, st.Settings.IntermissionLengthSeconds)
	assert.True(t, st.Flagged)
	assert.Equal(t, state.Profile{FirstName: "Ana", TeamName: "Hawks", Province: "ON"}, st.Profile)
}

func TestInflateLegacyClockFields(t *testing.T) {
	st := decodeJSON(t, `{"game":{"seconds":300,"tr":12,"timeoutTeam":1,"hr":45}}`)

	assert.Equal(t, 12, st.TimeoutClock.SecondsRemaining)
	require.NotNil(t, st.TimeoutClock.TeamIndex)
	assert.Equal(t, 1, *st.TimeoutClock.TeamIndex)
	assert.Equal(t, 45, st.IntermissionClock.SecondsRemaining)
	assert.False(t, st.AnyRunning())
}

func TestInflateMigratesOldRotationCounter(t *testing.T) {
	st := decodeJSON(t, `{"teams":[{"name":"A","girlPlay":3},{"name":"B","girlPlay":"soon"}]}`)

	assert.Equal(t, 0, st.Teams[0].MandatoryRotation)
	assert.Equal(t, 2, st.Teams[1].MandatoryRotation)
}

func TestInflateTolerance(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		check   func(t *testing.T, st state.State)
	}{
		{
			name:    "empty object is default",
			payload: `{}`,
			check:   func(t *testing.T, st state.State) { assert.Equal(t, state.Default(), st) },
		},
		{
			name:    "running without start time is stopped",
			payload: `{"mainClock":{"running":true,"secondsRemaining":30}}`,
			check: func(t *testing.T, st state.State) {
				assert.False(t, st.MainClock.Running)
				assert.Nil(t, st.MainClock.Anchor)
				assert.Equal(t, 30, st.MainClock.SecondsRemaining)
			},
		},
		{
			name:    "running without start seconds anchors at current seconds",
			payload: `{"mainClock":{"running":true,"secondsRemaining":30,"startedAtMs":1700000000000}}`,
			check: func(t *testing.T, st state.State) {
				require.NotNil(t, st.MainClock.Anchor)
				assert.Equal(t, 30, st.MainClock.Anchor.SecondsAtStart)
			},
		},
		{
			name:    "garbage numbers become safe defaults",
			payload: `{"activeTeam":"x","teams":[{"score":"lots","downs":null,"rushesRemaining":-3}],"mainClock":{"secondsRemaining":-10},"settings":{"segmentLengthSeconds":"0"}}`,
			check: func(t *testing.T, st state.State) {
				assert.Equal(t, 0, st.ActiveTeam)
				assert.Equal(t, 0, st.Teams[0].Score)
				assert.Equal(t, 1, st.Teams[0].Downs)
				assert.Equal(t, 0, st.Teams[0].RushesRemaining)
				assert.Equal(t, 0, st.MainClock.SecondsRemaining)
				assert.Equal(t, state.DefaultSegmentLengthSeconds, st.Settings.SegmentLengthSeconds)
			},
		},
		{
			name:    "oversized numbers saturate",
			payload: `{"teams":[{"score":3e9,"timeoutsRemaining":1e12}],"mainClock":{"secondsRemaining":5e9}}`,
			check: func(t *testing.T, st state.State) {
				assert.Equal(t, math.MaxInt32, st.Teams[0].Score)
				assert.Equal(t, math.MaxInt32, st.Teams[0].TimeoutsRemaining)
				assert.Equal(t, math.MaxInt32, st.MainClock.SecondsRemaining)
			},
		},
		{
			name:    "oversized photo is dropped",
			payload: `{"profile":{"photoData":"` + strings.Repeat("a", state.ProfilePhotoLimit+1) + `"}}`,
			check:   func(t *testing.T, st state.State) { assert.Empty(t, st.Profile.PhotoData) },
		},
		{
			name:    "non-object teams are ignored",
			payload: `{"teams":"oops","t":[1,2]}`,
			check:   func(t *testing.T, st state.State) { assert.Equal(t, state.Default().Teams, st.Teams) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, decodeJSON(t, tt.payload))
		})
	}
}

func TestDecodeRejectsNonObjects(t *testing.T) {
	for _, payload := range []string{`[]`, `"state"`, `42`, `null`, `{not json`} {
		_, err := Decode([]byte(payload))
		assert.ErrorIs(t, err, ErrMalformedPayload, payload)
	}
}

func TestMigrateRotationCounter(t *testing.T) {
	tests := []struct {
		in   any
		want int
	}{
		{float64(0), 2},
		{float64(1), 2},
		{float64(2), 1},
		{float64(3), 0},
		{float64(7), 0},
		{"2", 2},
		{nil, 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MigrateRotationCounter(tt.in), "%v", tt.in)
	}
}

func TestCompactRoundTrip(t *testing.T) {
	for name, st := range sampleStates(t) {
		t.Run(name, func(t *testing.T) {
			compact, err := MarshalCompact(st)
			require.NoError(t, err)

			full, err := Marshal(st)
			require.NoError(t, err)
			assert.Less(t, len(compact), len(full))

			fromCompact, err := Decode(compact)
			require.NoError(t, err)
			assert.Equal(t, Serialize(st), Serialize(fromCompact))
		})
	}
}
