package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/werkstatthub/signpad-server-go/internal/audit"
	"github.com/werkstatthub/signpad-server-go/internal/config"
	apperrors "github.com/werkstatthub/signpad-server-go/internal/errors"
	"github.com/werkstatthub/signpad-server-go/internal/httputil"
	"github.com/werkstatthub/signpad-server-go/internal/hub"
	"github.com/werkstatthub/signpad-server-go/internal/middleware"
	"github.com/werkstatthub/signpad-server-go/internal/repository"
)

// StreamHandler serves the persistent event streams. A device opens one
// stream; the hub pushes session events down it, and the device answers over
// plain POSTs. Together they form the bidirectional channel.
type StreamHandler struct {
	hub          *hub.Hub
	workstations repository.WorkstationRepository
}

func NewStreamHandler(h *hub.Hub, workstations repository.WorkstationRepository) *StreamHandler {
	return &StreamHandler{hub: h, workstations: workstations}
}

// GET /v1/tablet/stream (device-token authenticated)
func (h *StreamHandler) TabletStream(w http.ResponseWriter, r *http.Request) {
	tablet := middleware.GetTablet(r.Context())
	if tablet == nil {
		httputil.WriteError(w, apperrors.Unauthorized("Missing device context"))
		return
	}
	h.serve(w, r, tablet.ID, tablet.CompanyID, hub.RoleTablet)
}

// GET /v1/workstation/stream?workstationId= (tenant scoped)
func (h *StreamHandler) WorkstationStream(w http.ResponseWriter, r *http.Request) {
	companyID := middleware.GetCompanyID(r.Context())
	workstationID := r.URL.Query().Get("workstationId")
	if workstationID == "" {
		httputil.WriteError(w, apperrors.MissingRequired("workstationId"))
		return
	}

	// The stream carries session events for the workstation, so the caller
	// must own it. A foreign workstation looks identical to a missing one.
	ws, err := h.workstations.FindByID(r.Context(), workstationID)
	if err != nil {
		httputil.WriteError(w, apperrors.Database(err))
		return
	}
	if ws == nil {
		httputil.WriteError(w, apperrors.WorkstationNotFound())
		return
	}
	if ws.CompanyID != companyID {
		audit.Log(r.Context(), audit.Event{
			Type:      audit.EventCompanyMismatch,
			DeviceID:  workstationID,
			CompanyID: companyID,
		})
		httputil.WriteError(w, apperrors.WorkstationNotFound())
		return
	}

	h.serve(w, r, workstationID, companyID, hub.RoleWorkstation)
}

func (h *StreamHandler) serve(w http.ResponseWriter, r *http.Request, deviceID, companyID string, role hub.Role) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, apperrors.Internal("Streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := h.hub.Register(r.Context(), deviceID, companyID, role)
	// Teardown uses a fresh context: the request context is already done by
	// the time the stream unwinds.
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		h.hub.Unregister(cleanupCtx, client, "stream closed")
	}()

	connected, err := hub.NewEvent("connected", map[string]string{
		"deviceId": deviceID,
		"role":     string(role),
	})
	if err == nil {
		if err := h.sendEvent(w, flusher, connected); err != nil {
			return
		}
	}

	heartbeat := time.NewTicker(config.StreamHeartbeatPeriod)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("deviceId", deviceID).Msg("stream closed by client")
			return

		case <-client.Done:
			log.Debug().Str("deviceId", deviceID).Msg("stream closed by hub")
			return

		case event := <-client.Events:
			if err := h.sendEvent(w, flusher, event); err != nil {
				log.Debug().Err(err).Str("deviceId", deviceID).Msg("stream write failed")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().Str("deviceId", deviceID).Msg("heartbeat failed, closing stream")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *StreamHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, event hub.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
