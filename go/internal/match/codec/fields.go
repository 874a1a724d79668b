package codec

import (
	"github.com/mcdev12/sideline/go/internal/match/state"
)

// SchemaVersion is written into every snapshot produced by Serialize.
const SchemaVersion = 10

// Every name a field has been persisted under, current name first. When a
// field is renamed the new name goes to the front; old names stay so that
// previously stored snapshots keep decoding.
var (
	keysActiveTeam = []string{"activeTeam", "a"}
	keysTeams      = []string{"teams", "t"}

	keysTeamName     = []string{"name", "n"}
	keysTeamScore    = []string{"score", "s"}
	keysTeamDowns    = []string{"downs", "d"}
	keysTeamRotation = []string{"mandatoryRotation", "girlPlay", "g"}
	keysTeamRushes   = []string{"rushesRemaining", "rushes", "r"}
	keysTeamTimeouts = []string{"timeoutsRemaining", "timeouts", "o"}

	keysMainClock         = []string{"mainClock", "game", "g"}
	keysTimeoutClock      = []string{"timeoutClock", "timeout", "to"}
	keysIntermissionClock = []string{"intermissionClock", "halftime", "h"}

	keysMainSeconds      = []string{"secondsRemaining", "seconds", "s"}
	keysCountdownSeconds = []string{"secondsRemaining", "sr"}
	keysRunning          = []string{"running", "r"}
	keysStartedAt        = []string{"startedAtMs", "startedAt", "ms"}
	keysSecondsAtStart   = []string{"secondsAtStart", "sa"}
	keysTimeoutTeam      = []string{"teamIndex", "team", "tm"}

	// Before the timeout and intermission clocks had their own objects their
	// seconds lived on the main clock.
	keysLegacyTimeoutSeconds      = []string{"timeoutSecondsRemaining", "tr"}
	keysLegacyTimeoutTeam         = []string{"timeoutTeam"}
	keysLegacyIntermissionSeconds = []string{"halftimeSecondsRemaining", "hr"}

	keysSettings     = []string{"settings", "cfg"}
	keysSegment      = []string{"segmentLengthSeconds", "segment", "sg"}
	keysIntermission = []string{"intermissionLengthSeconds", "intermission", "im"}

	keysFlagged = []string{"flagged", "f"}

	keysProfile         = []string{"profile", "p"}
	keysProfileFirst    = []string{"firstName", "fn"}
	keysProfileTeam     = []string{"teamName", "team", "tn"}
	keysProfileCity     = []string{"city", "c"}
	keysProfileProvince = []string{"province", "provinceCode", "pv"}
	keysProfileLeague   = []string{"league", "leagueId", "teamLeague", "lg"}
	keysProfilePhoto    = []string{"photoData", "photo", "image", "i", "ph"}
)

// A fieldDecoder reads one top-level field of a stored snapshot into st.
// Decoders never fail: unreadable input leaves the default in place.
type fieldDecoder struct {
	// version is the schema version that introduced the field's current name.
	version int
	field   string
	decode  func(raw map[string]any, st *state.State)
}

// decoders run in order; later entries may depend on earlier ones (the main
// clock defaults to the decoded segment length).
var decoders = []fieldDecoder{
	{version: 8, field: "settings", decode: decodeSettings},
	{version: 10, field: "teams", decode: decodeTeams},
	{version: 4, field: "activeTeam", decode: decodeActiveTeam},
	{version: 10, field: "mainClock", decode: decodeMainClock},
	{version: 10, field: "timeoutClock", decode: decodeTimeoutClock},
	{version: 10, field: "intermissionClock", decode: decodeIntermissionClock},
	{version: 8, field: "flagged", decode: decodeFlagged},
	{version: 9, field: "profile", decode: decodeProfile},
}

func decodeSettings(raw map[string]any, st *state.State) {
	obj := object(raw, keysSettings)
	if obj == nil {
		return
	}
	if v, ok := lookup(obj, keysSegment); ok {
		if secs := coerceSeconds(v); secs > 0 {
			st.Settings.SegmentLengthSeconds = secs
		}
	}
	if v, ok := lookup(obj, keysIntermission); ok {
		if secs := coerceSeconds(v); secs > 0 {
			st.Settings.IntermissionLengthSeconds = secs
		}
	}
}

func decodeTeams(raw map[string]any, st *state.State) {
	v, ok := lookup(raw, keysTeams)
	if !ok {
		return
	}
	list, _ := v.([]any)
	for i := 0; i < len(list) && i < len(st.Teams); i++ {
		obj, ok := list[i].(map[string]any)
		if !ok {
			continue
		}
		st.Teams[i] = decodeTeam(obj, st.Teams[i])
	}
}

func decodeTeam(obj map[string]any, prev state.Team) state.Team {
	t := prev
	if v, ok := lookup(obj, keysTeamName); ok {
		if name, ok := text(v); ok {
			t.Name = name
		}
	}
	if v, ok := lookup(obj, keysTeamScore); ok {
		t.Score = truncInt(v)
	} else {
		t.Score = 0
	}
	if v, ok := lookup(obj, keysTeamDowns); ok {
		t.Downs = truncInt(v)
	}
	if v, ok := lookup(obj, keysTeamRotation); ok {
		if f, isNum := number(v); isNum && f >= 0 && f <= state.MaxRotation {
			t.MandatoryRotation = int(f)
		} else {
			t.MandatoryRotation = MigrateRotationCounter(v)
		}
	}
	if v, ok := lookup(obj, keysTeamRushes); ok {
		t.RushesRemaining = truncInt(v)
	}
	if v, ok := lookup(obj, keysTeamTimeouts); ok {
		t.TimeoutsRemaining = truncInt(v)
	}
	return t
}

func decodeActiveTeam(raw map[string]any, st *state.State) {
	v, ok := lookup(raw, keysActiveTeam)
	if !ok {
		return
	}
	f, ok := number(v)
	if !ok {
		st.ActiveTeam = 0
		return
	}
	st.ActiveTeam = state.ClampTeam(int(f))
}

// decodeCountdown reads the shared countdown fields. A running countdown with
// no start time is stopped; a running one with no recorded start seconds is
// assumed to have started from its current seconds.
func decodeCountdown(obj map[string]any, secondsKeys []string, fallbackSeconds any) state.Countdown {
	var c state.Countdown
	if v, ok := lookup(obj, secondsKeys); ok {
		c.SecondsRemaining = coerceSeconds(v)
	} else {
		c.SecondsRemaining = coerceSeconds(fallbackSeconds)
	}

	v, _ := lookup(obj, keysRunning)
	c.Running = truthy(v)
	if !c.Running {
		return c
	}

	started, _ := lookup(obj, keysStartedAt)
	startedAt := coerceMs(started)
	if startedAt == 0 {
		c.Running = false
		return c
	}

	atStart := c.SecondsRemaining
	if v, ok := lookup(obj, keysSecondsAtStart); ok {
		atStart = coerceSeconds(v)
	}
	c.Anchor = &state.Anchor{StartedAtMs: startedAt, SecondsAtStart: atStart}
	return c
}

func decodeMainClock(raw map[string]any, st *state.State) {
	obj := object(raw, keysMainClock)
	st.MainClock = decodeCountdown(obj, keysMainSeconds, st.Settings.SegmentLengthSeconds)
}

func decodeTimeoutClock(raw map[string]any, st *state.State) {
	mainObj := object(raw, keysMainClock)
	legacySeconds, _ := lookup(mainObj, keysLegacyTimeoutSeconds)

	obj := object(raw, keysTimeoutClock)
	st.TimeoutClock.Countdown = decodeCountdown(obj, keysCountdownSeconds, legacySeconds)

	team, ok := lookup(obj, keysTimeoutTeam)
	if !ok {
		team, ok = lookup(mainObj, keysLegacyTimeoutTeam)
	}
	if !ok {
		st.TimeoutClock.TeamIndex = nil
		return
	}
	idx := state.ClampTeam(truncInt(team))
	st.TimeoutClock.TeamIndex = &idx
}

func decodeIntermissionClock(raw map[string]any, st *state.State) {
	mainObj := object(raw, keysMainClock)
	legacySeconds, _ := lookup(mainObj, keysLegacyIntermissionSeconds)

	obj := object(raw, keysIntermissionClock)
	st.IntermissionClock = decodeCountdown(obj, keysCountdownSeconds, legacySeconds)
}

func decodeFlagged(raw map[string]any, st *state.State) {
	v, _ := lookup(raw, keysFlagged)
	switch x := v.(type) {
	case bool:
		st.Flagged = x
	default:
		f, ok := numeric(v)
		st.Flagged = ok && f == 1
	}
}

func decodeProfile(raw map[string]any, st *state.State) {
	obj := object(raw, keysProfile)
	if obj == nil {
		return
	}
	readText := func(keys []string) string {
		v, ok := lookup(obj, keys)
		if !ok {
			return ""
		}
		s, _ := text(v)
		return state.SanitizeProfileText(s)
	}

	st.Profile = state.Profile{
		FirstName: readText(keysProfileFirst),
		TeamName:  readText(keysProfileTeam),
		City:      readText(keysProfileCity),
		Province:  readText(keysProfileProvince),
		League:    readText(keysProfileLeague),
	}
	if v, ok := lookup(obj, keysProfilePhoto); ok {
		if photo, isString := v.(string); isString {
			st.Profile.PhotoData = state.SanitizePhoto(photo)
		}
	}
}

// MigrateRotationCounter maps the old rolling 1..3 rotation counter onto the
// current plays-remaining 2..0 scale. Values that are not numbers map to 2.
func MigrateRotationCounter(old any) int {
	f, ok := numeric(old)
	if !ok {
		return state.DefaultMandatoryRotation
	}
	switch {
	case f <= 1:
		return 2
	case f == 2:
		return 1
	default:
		return 0
	}
}
