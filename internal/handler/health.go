package handler

import (
	"net/http"

	"github.com/kainult/price-platform/internal/catalog"
	natsclient "github.com/kainult/price-platform/internal/nats"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	natsClient *natsclient.Client
	catalog    *catalog.Store
}

// NewHealthHandler creates a new health handler. natsClient is nil when
// event publishing is disabled.
func NewHealthHandler(natsClient *natsclient.Client, store *catalog.Store) *HealthHandler {
	return &HealthHandler{
		natsClient: natsClient,
		catalog:    store,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil || h.catalog.Len() == 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "catalog is empty",
		})
		return
	}

	if h.natsClient != nil && !h.natsClient.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "NATS not connected",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
