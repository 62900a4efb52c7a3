package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// StateHandler serves point-in-time clock state over HTTP
type StateHandler struct {
	registry *Registry
}

// NewStateHandler creates a new state handler
func NewStateHandler(registry *Registry) *StateHandler {
	return &StateHandler{registry: registry}
}

// HandleGetClock handles GET /api/games/{id}/clock
func (h *StateHandler) HandleGetClock(w http.ResponseWriter, r *http.Request) {
	gameID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid game ID format", http.StatusBadRequest)
		return
	}

	state, ok := h.registry.State(gameID)
	if !ok {
		http.Error(w, "Game not found", http.StatusNotFound)
		return
	}

	writeJSON(w, state)
}

// HandleListGames handles GET /api/games
func (h *StateHandler) HandleListGames(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.registry.States())
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/games", h.HandleListGames)
	mux.HandleFunc("GET /api/games/{id}/clock", h.HandleGetClock)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
