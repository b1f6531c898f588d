package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/werkstatthub/signpad-server-go/internal/errors"
	"github.com/werkstatthub/signpad-server-go/internal/httputil"
	"github.com/werkstatthub/signpad-server-go/internal/middleware"
	"github.com/werkstatthub/signpad-server-go/internal/service"
)

// SessionHandler exposes the workstation side of the signature workflow.
type SessionHandler struct {
	signatureService *service.SignatureService
}

func NewSessionHandler(signatureService *service.SignatureService) *SessionHandler {
	return &SessionHandler{signatureService: signatureService}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.StartSession)
	r.Get("/{sessionID}", h.GetSession)
	r.Post("/{sessionID}/cancel", h.CancelSession)

	return r
}

type startSessionRequest struct {
	DocumentID     string `json:"documentId"`
	TabletID       string `json:"tabletId"`
	WorkstationID  string `json:"workstationId"`
	SignerName     string `json:"signerName"`
	TimeoutMinutes int    `json:"timeoutMinutes"`
}

// POST /v1/sessions
func (h *SessionHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	companyID := middleware.GetCompanyID(r.Context())

	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.ValidationError("Invalid JSON body"))
		return
	}
	switch {
	case req.DocumentID == "":
		httputil.WriteError(w, apperrors.MissingRequired("documentId"))
		return
	case req.TabletID == "":
		httputil.WriteError(w, apperrors.MissingRequired("tabletId"))
		return
	case req.WorkstationID == "":
		httputil.WriteError(w, apperrors.MissingRequired("workstationId"))
		return
	}

	session, err := h.signatureService.StartSession(r.Context(), service.StartSessionParams{
		DocumentID:    req.DocumentID,
		TabletID:      req.TabletID,
		WorkstationID: req.WorkstationID,
		CompanyID:     companyID,
		SignerName:    req.SignerName,
		Timeout:       time.Duration(req.TimeoutMinutes) * time.Minute,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, session)
}

// GET /v1/sessions/{sessionID}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	companyID := middleware.GetCompanyID(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.signatureService.GetSession(r.Context(), sessionID, companyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, session)
}

type cancelSessionRequest struct {
	Reason string `json:"reason"`
}

// POST /v1/sessions/{sessionID}/cancel
func (h *SessionHandler) CancelSession(w http.ResponseWriter, r *http.Request) {
	companyID := middleware.GetCompanyID(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	var req cancelSessionRequest
	if r.Body != nil {
		// Missing or empty body means no reason given.
		json.NewDecoder(r.Body).Decode(&req)
	}

	if err := h.signatureService.CancelSession(r.Context(), sessionID, companyID, req.Reason); err != nil {
		httputil.WriteError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]string{"sessionId": sessionID})
}
