package handler

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/werkstatthub/signpad-server-go/internal/errors"
	"github.com/werkstatthub/signpad-server-go/internal/httputil"
	"github.com/werkstatthub/signpad-server-go/internal/hub"
	"github.com/werkstatthub/signpad-server-go/internal/middleware"
	"github.com/werkstatthub/signpad-server-go/internal/service"
)

// TabletHandler is the upstream half of the tablet channel: acknowledgements,
// signature uploads and heartbeats arrive as POSTs against the device-token
// authenticated routes.
type TabletHandler struct {
	signatureService *service.SignatureService
	registry         *service.DeviceRegistry
	hub              *hub.Hub
}

func NewTabletHandler(signatureService *service.SignatureService, registry *service.DeviceRegistry, h *hub.Hub) *TabletHandler {
	return &TabletHandler{
		signatureService: signatureService,
		registry:         registry,
		hub:              h,
	}
}

func (h *TabletHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/heartbeat", h.Heartbeat)
	r.Post("/sessions/{sessionID}/ack", h.AcknowledgeSession)
	r.Post("/sessions/{sessionID}/signature", h.CompleteSession)

	return r
}

// POST /v1/tablet/heartbeat
func (h *TabletHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	tablet := middleware.GetTablet(r.Context())

	if err := h.registry.Heartbeat(r.Context(), tablet.ID); err != nil {
		log.Error().Err(err).Str("tabletId", tablet.ID).Msg("heartbeat update failed")
		httputil.WriteError(w, apperrors.Database(err))
		return
	}

	writeSuccess(w, http.StatusOK, map[string]bool{
		"connected": h.hub.IsOnline(tablet.ID, hub.RoleTablet),
	})
}

// POST /v1/tablet/sessions/{sessionID}/ack
func (h *TabletHandler) AcknowledgeSession(w http.ResponseWriter, r *http.Request) {
	tablet := middleware.GetTablet(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	h.hub.Touch(tablet.ID, hub.RoleTablet)

	if err := h.signatureService.AcknowledgeSession(r.Context(), sessionID, tablet.ID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]string{"sessionId": sessionID})
}

type completeSessionRequest struct {
	// Signature image, base64 encoded PNG or JPEG.
	Image string `json:"image"`
}

// POST /v1/tablet/sessions/{sessionID}/signature
func (h *TabletHandler) CompleteSession(w http.ResponseWriter, r *http.Request) {
	tablet := middleware.GetTablet(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	h.hub.Touch(tablet.ID, hub.RoleTablet)

	var req completeSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.ValidationError("Invalid JSON body"))
		return
	}
	if req.Image == "" {
		httputil.WriteError(w, apperrors.InvalidSignatureFormat("empty image"))
		return
	}

	image, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		httputil.WriteError(w, apperrors.InvalidSignatureFormat("invalid base64 encoding"))
		return
	}

	result, err := h.signatureService.CompleteSession(r.Context(), sessionID, tablet.ID, image)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, result)
}
