package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests for match connections
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	service           *Service
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, service *Service) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		service:           service,
	}
}

// HandleMatchConnection streams state messages for the served match
func (h *WebSocketHandler) HandleMatchConnection(w http.ResponseWriter, r *http.Request) {
	matchID, ok := h.service.resolveMatchID(w, r)
	if !ok {
		return
	}

	if err := h.connectionManager.Attach(w, r, h.service.stateMessage()); err != nil {
		// The upgrader has already replied to the client.
		log.Error().
			Err(err).
			Str("match_id", matchID).
			Msg("failed to upgrade WebSocket connection")
	}
}

// HandleConnectionStats returns the number of attached viewers
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.Stats()); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/match", h.HandleMatchConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
