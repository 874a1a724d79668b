package remote

import "fmt"

// Status is the connection state of the engine.
type Status int

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusConnected
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// StatusInfo is a point-in-time view of the engine for display.
type StatusInfo struct {
	Status   Status `json:"-"`
	State    string `json:"status"`
	MatchID  string `json:"match_id,omitempty"`
	CanWrite bool   `json:"can_write"`
	Err      string `json:"error,omitempty"`
}

// Describe renders the status line shown to the referee.
func (i StatusInfo) Describe() string {
	switch i.Status {
	case StatusConnecting:
		return fmt.Sprintf("Connecting to %s…", i.MatchID)
	case StatusConnected:
		role := "Viewer"
		if i.CanWrite {
			role = "Ref (writer)"
		}
		line := fmt.Sprintf("Connected • %s • %s", i.MatchID, role)
		if i.Err != "" {
			line += " • " + i.Err
		}
		return line
	case StatusError:
		return "Sync error — " + i.Err
	default:
		if i.MatchID == "" {
			return "Offline"
		}
		return "Ready to connect"
	}
}
