package handlers

import (
	"net/http"

	"github.com/marmos91/staticd/internal/logger"
	"github.com/marmos91/staticd/pkg/cache"
	"github.com/marmos91/staticd/pkg/server"
)

// CacheStatus describes the cache gate and the single cache slot.
type CacheStatus struct {
	Enabled bool   `json:"enabled"`
	Entries int    `json:"entries"`
	Key     string `json:"key,omitempty"`
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	server.Stats
	Origin string      `json:"origin"`
	Cache  CacheStatus `json:"cache"`
}

// StatusHandler reports server counters and controls the cache gate.
type StatusHandler struct {
	server StatsProvider
	gate   *cache.Gate
	slot   *cache.Slot
	origin string
}

// NewStatusHandler creates a status handler. gate is the same instance the
// file server's control route flips.
func NewStatusHandler(srv StatsProvider, gate *cache.Gate, slot *cache.Slot, origin string) *StatusHandler {
	return &StatusHandler{server: srv, gate: gate, slot: slot, origin: origin}
}

// Status handles GET /api/v1/status.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h.server == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse("server not initialized"))
		return
	}

	writeJSON(w, http.StatusOK, okResponse(StatusResponse{
		Stats:  h.server.Stats(),
		Origin: h.origin,
		Cache:  h.cacheStatus(),
	}))
}

// Cache handles GET /api/v1/cache.
func (h *StatusHandler) Cache(w http.ResponseWriter, r *http.Request) {
	if h.gate == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse("cache not initialized"))
		return
	}
	writeJSON(w, http.StatusOK, okResponse(h.cacheStatus()))
}

// ToggleCache handles POST /api/v1/cache/toggle.
//
// The slot is left as is, so re-enabling can serve the entry cached before
// the gate was turned off.
func (h *StatusHandler) ToggleCache(w http.ResponseWriter, r *http.Request) {
	if h.gate == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse("cache not initialized"))
		return
	}

	enabled := h.gate.Toggle()
	logger.Info("Cache toggled", logger.KeyCacheEnabled, enabled, "via", "api")
	writeJSON(w, http.StatusOK, okResponse(h.cacheStatus()))
}

func (h *StatusHandler) cacheStatus() CacheStatus {
	var st CacheStatus
	if h.gate != nil {
		st.Enabled = h.gate.Enabled()
	}
	if h.slot != nil {
		st.Entries = h.slot.Len()
		st.Key = h.slot.Key()
	}
	return st
}
