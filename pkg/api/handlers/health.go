package handlers

import (
	"net/http"

	"github.com/marmos91/staticd/pkg/server"
)

// StatsProvider is the view of the file server the admin API reads.
// *server.Server implements it.
type StatsProvider interface {
	Stats() server.Stats
}

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated and provide:
//   - Liveness probe: Is the process running?
//   - Readiness probe: Is the file server accepting connections?
type HealthHandler struct {
	server StatsProvider
}

// NewHealthHandler creates a new health handler. srv may be nil, in which
// case readiness reports unhealthy.
func NewHealthHandler(srv StatsProvider) *HealthHandler {
	return &HealthHandler{server: srv}
}

// Liveness handles GET /health. It succeeds whenever the API itself responds.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": "staticd",
	}))
}

// Readiness handles GET /health/ready.
//
// Returns 200 OK only while the file server is LISTENING; 503 during
// startup, draining and after stop.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.server == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("server not initialized"))
		return
	}

	st := h.server.Stats()
	if st.State != server.StateListening {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("server is "+st.State.String()))
		return
	}

	writeJSON(w, http.StatusOK, healthyResponse(map[string]any{
		"state":   st.State,
		"address": st.Address,
		"workers": st.Workers,
	}))
}
