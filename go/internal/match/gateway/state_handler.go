package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/sideline/go/internal/match"
	"github.com/mcdev12/sideline/go/internal/match/persistence"
	"github.com/mcdev12/sideline/go/internal/match/remote"
	"github.com/mcdev12/sideline/go/internal/match/state"
)

// ActionRequest is the body of POST /api/match/actions
type ActionRequest struct {
	Action   string `json:"action"`
	Team     *int   `json:"team,omitempty"`
	Delta    int    `json:"delta,omitempty"`
	Flagged  bool   `json:"flagged,omitempty"`
	ViewMode string `json:"view_mode,omitempty"`
}

// ErrorResponse is returned for rejected actions
type ErrorResponse struct {
	Error string `json:"error"`
}

// StateHandler handles HTTP requests for match state and actions
type StateHandler struct {
	service *Service
}

// NewStateHandler creates a new state handler
func NewStateHandler(service *Service) *StateHandler {
	return &StateHandler{service: service}
}

// HandleGetState handles GET /api/match/state
func (h *StateHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, ok := h.service.resolveMatchID(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.service.stateMessage())
}

// HandleAction handles POST /api/match/actions
func (h *StateHandler) HandleAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ActionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.apply(r, req); err != nil {
		status := statusForError(err)
		if status == http.StatusInternalServerError {
			log.Error().Err(err).Str("action", req.Action).Msg("action failed")
		}
		writeJSON(w, status, ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, h.service.stateMessage())
}

var errBadAction = errors.New("bad action")

func (h *StateHandler) apply(r *http.Request, req ActionRequest) error {
	ctx := r.Context()
	app := h.service.app

	team := func() (int, error) {
		if req.Team == nil {
			return 0, fmt.Errorf("%w: %s requires team", errBadAction, req.Action)
		}
		return *req.Team, nil
	}

	var err error
	switch req.Action {
	case "start_clock":
		_, err = app.StartClock(ctx)
	case "pause_clock":
		_, err = app.PauseClock(ctx)
	case "toggle_clock":
		_, err = app.ToggleClock(ctx)
	case "start_timeout":
		var idx int
		if idx, err = team(); err == nil {
			_, err = app.StartTimeout(ctx, idx)
		}
	case "start_intermission":
		_, err = app.StartIntermission(ctx)
	case "normal_play":
		_, err = app.AdvancePlay(ctx, state.NormalPlay)
	case "mandatory_play":
		_, err = app.AdvancePlay(ctx, state.MandatoryPlay)
	case "turnover":
		_, err = app.RecordTurnover(ctx)
	case "score":
		var idx int
		if idx, err = team(); err == nil {
			_, err = app.AddScore(ctx, idx, req.Delta)
		}
	case "set_flagged":
		_, err = app.SetFlagged(ctx, req.Flagged)
	case "set_view_mode":
		switch persistence.ViewMode(req.ViewMode) {
		case persistence.ViewModeRef, persistence.ViewModeScoreboard:
			err = app.SetViewMode(ctx, persistence.ViewMode(req.ViewMode))
		default:
			err = fmt.Errorf("%w: unknown view mode %q", errBadAction, req.ViewMode)
		}
	default:
		err = fmt.Errorf("%w: unknown action %q", errBadAction, req.Action)
	}
	return err
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, errBadAction), errors.Is(err, state.ErrInvalidTeam):
		return http.StatusBadRequest
	case errors.Is(err, match.ErrReadOnlyView):
		return http.StatusForbidden
	case errors.Is(err, state.ErrNoTimeoutsRemaining), errors.Is(err, state.ErrTimeoutRunning),
		errors.Is(err, remote.ErrTransactionConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/match/state", h.HandleGetState)
	mux.HandleFunc("/api/match/actions", h.HandleAction)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
