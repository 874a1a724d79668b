package state

import "errors"

var (
	// ErrInvalidTeam is returned when a team index is not 0 or 1.
	ErrInvalidTeam = errors.New("invalid team index")
	// ErrNoTimeoutsRemaining is returned by StartTimeout for a team with no timeouts left.
	ErrNoTimeoutsRemaining = errors.New("no timeouts remaining")
	// ErrTimeoutRunning is returned by StartTimeout while another timeout is running.
	ErrTimeoutRunning = errors.New("timeout already running")
)
