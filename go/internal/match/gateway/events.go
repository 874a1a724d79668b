package gateway

import (
	"time"

	"github.com/mcdev12/sideline/go/internal/match/codec"
	"github.com/mcdev12/sideline/go/internal/match/remote"
	"github.com/mcdev12/sideline/go/internal/match/state"
)

// MessageType identifies messages sent to WebSocket clients.
type MessageType string

const (
	MessageTypeState MessageType = "state"
)

// StateMessage carries a full match snapshot. ServerTimeMs lets clients
// render running countdowns against the server's clock.
type StateMessage struct {
	Type         MessageType       `json:"type"`
	MatchID      string            `json:"match_id"`
	ServerTimeMs int64             `json:"server_time_ms"`
	ViewMode     string            `json:"view_mode"`
	Sync         remote.StatusInfo `json:"sync"`
	SyncText     string            `json:"sync_text"`
	State        codec.Snapshot    `json:"state"`
}

func newStateMessage(matchID string, now time.Time, st state.State, viewMode string, sync remote.StatusInfo) *StateMessage {
	return &StateMessage{
		Type:         MessageTypeState,
		MatchID:      matchID,
		ServerTimeMs: now.UnixMilli(),
		ViewMode:     viewMode,
		Sync:         sync,
		SyncText:     sync.Describe(),
		State:        codec.Serialize(st),
	}
}
