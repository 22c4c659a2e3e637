package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/codepair-live/codepair/internal/registry"
	"github.com/codepair-live/codepair/internal/relay"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store   registry.Store
	relay   *relay.Hub
	started time.Time
}

// NewHandler creates a new Handler with the given store and relay hub.
func NewHandler(store registry.Store, hub *relay.Hub) *Handler {
	return &Handler{store: store, relay: hub, started: time.Now()}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
