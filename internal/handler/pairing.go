package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/werkstatthub/signpad-server-go/internal/audit"
	apperrors "github.com/werkstatthub/signpad-server-go/internal/errors"
	"github.com/werkstatthub/signpad-server-go/internal/httputil"
	"github.com/werkstatthub/signpad-server-go/internal/middleware"
	"github.com/werkstatthub/signpad-server-go/internal/service"
)

type PairingHandler struct {
	pairingService *service.PairingService
}

func NewPairingHandler(pairingService *service.PairingService) *PairingHandler {
	return &PairingHandler{pairingService: pairingService}
}

type generateCodeRequest struct {
	WorkstationID   string `json:"workstationId"`
	WorkstationName string `json:"workstationName"`
}

// POST /v1/pairing/codes
func (h *PairingHandler) GenerateCode(w http.ResponseWriter, r *http.Request) {
	companyID := middleware.GetCompanyID(r.Context())

	var req generateCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.ValidationError("Invalid JSON body"))
		return
	}
	if req.WorkstationID == "" {
		httputil.WriteError(w, apperrors.MissingRequired("workstationId"))
		return
	}

	result, err := h.pairingService.GenerateCode(r.Context(), req.WorkstationID, companyID, req.WorkstationName)
	if err != nil {
		log.Error().Err(err).Str("workstationId", req.WorkstationID).Msg("failed to generate pairing code")
		httputil.WriteError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventPairingCodeGenerate,
		CompanyID: companyID,
		Details:   map[string]interface{}{"workstationId": req.WorkstationID},
	})

	writeSuccess(w, http.StatusCreated, result)
}

type redeemRequest struct {
	Code       string `json:"code"`
	DeviceName string `json:"deviceName"`
}

// POST /v1/pairing/redeem
func (h *PairingHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.ValidationError("Invalid JSON body"))
		return
	}
	if req.Code == "" {
		httputil.WriteError(w, apperrors.MissingRequired("code"))
		return
	}

	creds, err := h.pairingService.Redeem(r.Context(), req.Code, req.DeviceName)
	if err != nil {
		if appErr, ok := apperrors.AsAppError(err); ok && appErr.Code == apperrors.ErrCodeInvalidPairingCode {
			audit.LogFromRequest(r, audit.Event{Type: audit.EventPairingCodeRejected})
		}
		httputil.WriteError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:     audit.EventPairingCodeRedeem,
		DeviceID: creds.DeviceID,
	})

	writeSuccess(w, http.StatusCreated, creds)
}
