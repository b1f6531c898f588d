package handler

import (
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/werkstatthub/signpad-server-go/internal/errors"
	"github.com/werkstatthub/signpad-server-go/internal/httputil"
	"github.com/werkstatthub/signpad-server-go/internal/middleware"
	"github.com/werkstatthub/signpad-server-go/internal/service"
)

type DevicesHandler struct {
	registry *service.DeviceRegistry
}

func NewDevicesHandler(registry *service.DeviceRegistry) *DevicesHandler {
	return &DevicesHandler{registry: registry}
}

// GET /v1/devices
// Operational listing of the company's tablets with live
// connectivity and uptime.
func (h *DevicesHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	companyID := middleware.GetCompanyID(r.Context())

	tablets, err := h.registry.ListTablets(r.Context(), companyID)
	if err != nil {
		log.Error().Err(err).Str("companyId", companyID).Msg("failed to list devices")
		httputil.WriteError(w, apperrors.Database(err))
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{
		"devices": tablets,
		"count":   len(tablets),
	})
}
