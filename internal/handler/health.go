package handler

import (
	"net/http"
	"time"

	"github.com/werkstatthub/signpad-server-go/internal/cache"
	"github.com/werkstatthub/signpad-server-go/internal/hub"
)

type HealthHandler struct {
	hub           *hub.Hub
	artifactCache *cache.ArtifactCache
}

func NewHealthHandler(h *hub.Hub, artifactCache *cache.ArtifactCache) *HealthHandler {
	return &HealthHandler{hub: h, artifactCache: artifactCache}
}

// GET /health
// Liveness probe with connection and cache gauges.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "ok",
		"timestamp":          time.Now().UnixMilli(),
		"activeConnections":  h.hub.ActiveConnections(),
		"activeTablets":      h.hub.ActiveTablets(),
		"activeWorkstations": h.hub.ActiveWorkstations(),
		"cachedArtifacts":    h.artifactCache.Len(),
	})
}
