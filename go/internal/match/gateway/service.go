// Package gateway serves the match to browsers: a WebSocket stream of state
// snapshots and a small HTTP API for referee actions.
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/sideline/go/internal/match"
	"github.com/mcdev12/sideline/go/internal/match/state"
)

// Service is the match gateway
type Service struct {
	app               *match.App
	matchID           string
	clock             clockwork.Clock
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
}

// Config holds configuration for the match gateway
type Config struct {
	// MatchID names the served match. Empty means a local-only match.
	MatchID          string
	ConnectionConfig ConnectionConfig
	Clock            clockwork.Clock
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		Clock:            clockwork.NewRealClock(),
	}
}

// NewService creates a gateway serving app
func NewService(config Config, app *match.App) *Service {
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	s := &Service{
		app:               app,
		matchID:           config.MatchID,
		clock:             config.Clock,
		connectionManager: NewConnectionManager(config.MatchID, config.ConnectionConfig, config.Clock),
	}
	s.wsHandler = NewWebSocketHandler(s.connectionManager, s)
	s.stateHandler = NewStateHandler(s)
	return s
}

// Start broadcasts every state change until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Str("match_id", s.matchID).Msg("starting match gateway service")

	unsubscribe := s.app.Subscribe(func(st state.State) {
		s.connectionManager.Publish(s.newMessage(st))
	})
	defer unsubscribe()

	s.connectionManager.Start(ctx)

	log.Info().Msg("match gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket and HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("match gateway routes registered")
}

// Handler returns the gateway routes wrapped with CORS and cleartext HTTP/2
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	setupHealthCheck(mux)
	return Wrap(mux)
}

// Stats returns statistics about the gateway service
func (s *Service) Stats() ConnectionStats {
	return s.connectionManager.Stats()
}

func (s *Service) stateMessage() *StateMessage {
	return s.newMessage(s.app.State())
}

func (s *Service) newMessage(st state.State) *StateMessage {
	return newStateMessage(s.matchID, s.clock.Now(), st, string(s.app.ViewMode()), s.app.SyncStatus())
}

// resolveMatchID checks the optional match_id query parameter against the
// served match, replying with 404 on mismatch.
func (s *Service) resolveMatchID(w http.ResponseWriter, r *http.Request) (string, bool) {
	requested := r.URL.Query().Get("match_id")
	if requested != "" && requested != s.matchID {
		http.Error(w, "unknown match_id", http.StatusNotFound)
		return "", false
	}
	return s.matchID, true
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}

// ShutdownTimeout bounds graceful HTTP shutdown.
const ShutdownTimeout = 10 * time.Second
