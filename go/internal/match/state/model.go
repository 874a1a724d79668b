package state

// Default values for a fresh match and for each half.
const (
	DefaultSegmentLengthSeconds      = 25 * 60
	DefaultIntermissionLengthSeconds = 5 * 60
	TimeoutDurationSeconds           = 30

	DefaultDowns             = 1
	DefaultMandatoryRotation = 2
	DefaultRushes            = 2
	DefaultTimeouts          = 3

	MinDowns    = 1
	MaxDowns    = 4
	MaxRotation = 2
)

// PlayKind distinguishes a regular play from a play that satisfies the
// mandatory rotation rule.
type PlayKind int

const (
	NormalPlay PlayKind = iota
	MandatoryPlay
)

func (k PlayKind) String() string {
	switch k {
	case NormalPlay:
		return "normal"
	case MandatoryPlay:
		return "mandatory"
	default:
		return "unknown"
	}
}

// Team holds the per-side counters.
type Team struct {
	Name              string
	Score             int
	Downs             int
	MandatoryRotation int
	RushesRemaining   int
	TimeoutsRemaining int
}

// Anchor pins a running countdown to the wall clock: the countdown had
// SecondsAtStart left at StartedAtMs (unix milliseconds).
type Anchor struct {
	StartedAtMs    int64
	SecondsAtStart int
}

// Countdown is a timer described by an anchor rather than a ticking counter.
// A stopped countdown has no anchor; a running one always has one.
type Countdown struct {
	Running          bool
	SecondsRemaining int
	Anchor           *Anchor
}

// TimeoutCountdown is the timeout clock plus the team that called it.
type TimeoutCountdown struct {
	Countdown
	TeamIndex *int
}

// Settings are the configurable period lengths.
type Settings struct {
	SegmentLengthSeconds      int
	IntermissionLengthSeconds int
}

// Profile is the optional owner profile shown by presentation code.
type Profile struct {
	FirstName string
	TeamName  string
	City      string
	Province  string
	League    string
	PhotoData string
}

// State is the canonical snapshot of one match.
type State struct {
	ActiveTeam        int
	Teams             [2]Team
	MainClock         Countdown
	TimeoutClock      TimeoutCountdown
	IntermissionClock Countdown
	Settings          Settings
	Flagged           bool
	Profile           Profile
}

// DefaultSettings returns the default period lengths.
func DefaultSettings() Settings {
	return Settings{
		SegmentLengthSeconds:      DefaultSegmentLengthSeconds,
		IntermissionLengthSeconds: DefaultIntermissionLengthSeconds,
	}
}

// DefaultTeam returns a team with the per-half defaults.
func DefaultTeam(name string) Team {
	return Team{
		Name:              name,
		Downs:             DefaultDowns,
		MandatoryRotation: DefaultMandatoryRotation,
		RushesRemaining:   DefaultRushes,
		TimeoutsRemaining: DefaultTimeouts,
	}
}

// Default returns the state of a match that has not started.
func Default() State {
	settings := DefaultSettings()
	return State{
		Teams:     [2]Team{DefaultTeam("Home"), DefaultTeam("Away")},
		MainClock: Countdown{SecondsRemaining: settings.SegmentLengthSeconds},
		Settings:  settings,
	}
}

// Clone returns a deep copy that shares no pointers with s.
func (s State) Clone() State {
	out := s
	out.MainClock = s.MainClock.clone()
	out.TimeoutClock.Countdown = s.TimeoutClock.Countdown.clone()
	if s.TimeoutClock.TeamIndex != nil {
		idx := *s.TimeoutClock.TeamIndex
		out.TimeoutClock.TeamIndex = &idx
	}
	out.IntermissionClock = s.IntermissionClock.clone()
	return out
}

func (c Countdown) clone() Countdown {
	if c.Anchor != nil {
		a := *c.Anchor
		c.Anchor = &a
	}
	return c
}

// AnyRunning reports whether any of the three countdowns is running.
func (s *State) AnyRunning() bool {
	return s.MainClock.Running || s.TimeoutClock.Running || s.IntermissionClock.Running
}

// RunningCount returns how many countdowns are running. Well-formed states
// never report more than one.
func (s *State) RunningCount() int {
	n := 0
	for _, running := range []bool{s.MainClock.Running, s.TimeoutClock.Running, s.IntermissionClock.Running} {
		if running {
			n++
		}
	}
	return n
}

// ValidTeam reports whether idx addresses one of the two sides.
func ValidTeam(idx int) bool {
	return idx == 0 || idx == 1
}

// Other returns the opposing side's index.
func Other(idx int) int {
	if idx == 0 {
		return 1
	}
	return 0
}
