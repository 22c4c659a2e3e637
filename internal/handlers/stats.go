package handlers

import "net/http"

// StatsResponse represents the live server statistics.
type StatsResponse struct {
	RoomsTotal       int   `json:"rooms_total"`
	RoomsOccupied    int   `json:"rooms_occupied"`
	MembersOnline    int   `json:"members_online"`
	Connections      int64 `json:"connections"`
	ExecutionsServed int64 `json:"executions_served"`
}

// Stats returns counters for the current process. Rooms are never
// removed from the registry, so rooms_total only grows until restart.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	total, occupied := h.store.RoomCount()

	h.JSON(w, http.StatusOK, StatsResponse{
		RoomsTotal:       total,
		RoomsOccupied:    occupied,
		MembersOnline:    h.store.MemberCount(),
		Connections:      h.relay.ConnectionCount(),
		ExecutionsServed: h.relay.ExecutionCount(),
	})
}
