package handler

import "net/http"

type ConnectionsResponse struct {
	AdminIDs    []string `json:"adminIds"`
	ClientCount int      `json:"clientCount"`
}

// ListConnections reports the admins with at least one open stream on this
// instance.
func (h *Handler) ListConnections(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ConnectionsResponse{
		AdminIDs:    h.hub.ConnectedAdminIDs(),
		ClientCount: h.hub.ClientCount(),
	})
}
