package match

import "errors"

var (
	// ErrReadOnlyView is returned for mutations attempted in scoreboard view.
	ErrReadOnlyView = errors.New("scoreboard view is read-only")
	// ErrSyncUnavailable is returned when no remote store is configured.
	ErrSyncUnavailable = errors.New("sync is not available")
)
