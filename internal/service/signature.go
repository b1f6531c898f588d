package service

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/werkstatthub/signpad-server-go/internal/audit"
	"github.com/werkstatthub/signpad-server-go/internal/cache"
	"github.com/werkstatthub/signpad-server-go/internal/config"
	apperrors "github.com/werkstatthub/signpad-server-go/internal/errors"
	"github.com/werkstatthub/signpad-server-go/internal/hub"
	"github.com/werkstatthub/signpad-server-go/internal/model"
)

// Event types pushed over device streams.
const (
	EventSignatureRequest = "signature_request"
	EventSessionCompleted = "session_completed"
	EventSessionCancelled = "session_cancelled"
	EventSessionError     = "session_error"
)

var (
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
)

// SignatureService drives the per-session state machine from creation through
// completion, cancellation or error. Sessions are held in memory; transitions
// are compare-and-set under the service lock so a completion racing an expiry
// sweep resolves to whichever commits first.
type SignatureService struct {
	registry *DeviceRegistry
	conns    ConnectionManager
	cache    *cache.ArtifactCache
	docs     DocumentFetcher
	store    SignedDocumentStore

	defaultTimeout time.Duration
	maxImageBytes  int64

	mu         sync.Mutex
	sessions   map[string]*model.SignatureSession
	byTablet   map[string]string // tablet id -> its non-terminal session id
	finalizing map[string]bool   // session ids with a completion in flight

	now func() time.Time
}

func NewSignatureService(
	registry *DeviceRegistry,
	conns ConnectionManager,
	artifactCache *cache.ArtifactCache,
	docs DocumentFetcher,
	store SignedDocumentStore,
	defaultTimeout time.Duration,
	maxImageBytes int64,
) *SignatureService {
	s := &SignatureService{
		registry:       registry,
		conns:          conns,
		cache:          artifactCache,
		docs:           docs,
		store:          store,
		defaultTimeout: defaultTimeout,
		maxImageBytes:  maxImageBytes,
		sessions:       make(map[string]*model.SignatureSession),
		byTablet:       make(map[string]string),
		finalizing:     make(map[string]bool),
		now:            time.Now,
	}
	conns.OnDisconnect(s.handleDisconnect)
	return s
}

type StartSessionParams struct {
	DocumentID    string
	TabletID      string
	WorkstationID string
	CompanyID     string
	SignerName    string
	Timeout       time.Duration
}

// signatureRequest is the render payload pushed to the tablet. Document bytes
// travel base64-encoded inside the event.
type signatureRequest struct {
	SessionID  string    `json:"sessionId"`
	DocumentID string    `json:"documentId"`
	SignerName string    `json:"signerName"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Document   []byte    `json:"document"`
}

// StartSession creates a session against an online, idle tablet of the
// caller's company and pushes the document to it. The returned session is in
// SENT_TO_TABLET state; a failed push surfaces as TabletNotAvailable and
// leaves the session in ERROR.
func (s *SignatureService) StartSession(ctx context.Context, params StartSessionParams) (*model.SignatureSession, error) {
	tablet, err := s.registry.FindTablet(ctx, params.TabletID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if tablet == nil {
		return nil, apperrors.TabletNotFound()
	}
	if tablet.CompanyID != params.CompanyID {
		audit.Log(ctx, audit.Event{
			Type:      audit.EventCompanyMismatch,
			DeviceID:  params.TabletID,
			CompanyID: params.CompanyID,
		})
		return nil, apperrors.UnauthorizedTablet()
	}
	if !s.conns.IsOnline(params.TabletID, hub.RoleTablet) {
		return nil, apperrors.TabletNotAvailable("offline")
	}

	timeout := params.Timeout
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}
	if timeout < config.MinSessionTimeout {
		timeout = config.MinSessionTimeout
	}
	if timeout > config.MaxSessionTimeout {
		timeout = config.MaxSessionTimeout
	}

	now := s.now()
	session := &model.SignatureSession{
		ID:            uuid.NewString(),
		DocumentID:    params.DocumentID,
		TabletID:      params.TabletID,
		WorkstationID: params.WorkstationID,
		CompanyID:     params.CompanyID,
		SignerName:    params.SignerName,
		Status:        model.SessionStatusPending,
		CreatedAt:     now,
		ExpiresAt:     now.Add(timeout),
	}

	// Reserve the tablet before any slow work so a concurrent StartSession
	// against the same tablet fails fast as busy.
	s.mu.Lock()
	if existingID, busy := s.byTablet[params.TabletID]; busy {
		s.mu.Unlock()
		log.Info().
			Str("tabletId", params.TabletID).
			Str("sessionId", existingID).
			Msg("tablet already has an active session")
		return nil, apperrors.TabletNotAvailable("busy")
	}
	s.sessions[session.ID] = session
	s.byTablet[params.TabletID] = session.ID
	s.mu.Unlock()

	document, err := s.docs.FetchDocument(ctx, params.CompanyID, params.DocumentID)
	if err != nil {
		s.fail(ctx, session.ID, "document fetch failed")
		return nil, apperrors.External("document renderer", err)
	}

	s.cache.Put(session.ID, cache.Artifact{
		CompanyID:  params.CompanyID,
		Document:   document,
		SignerName: params.SignerName,
	})

	event, err := hub.NewEvent(EventSignatureRequest, signatureRequest{
		SessionID:  session.ID,
		DocumentID: params.DocumentID,
		SignerName: params.SignerName,
		ExpiresAt:  session.ExpiresAt,
		Document:   document,
	})
	if err != nil {
		s.fail(ctx, session.ID, "payload encoding failed")
		return nil, apperrors.Internal("Failed to encode render payload").WithCause(err)
	}

	if !s.conns.Send(ctx, params.TabletID, hub.RoleTablet, event) {
		s.fail(ctx, session.ID, "tablet unreachable")
		return nil, apperrors.TabletNotAvailable("unreachable")
	}

	if !s.transition(session.ID, model.SessionStatusSentToTablet, "",
		model.SessionStatusPending) {
		// A fast tablet may have acknowledged (or even completed) before the
		// send was recorded; only a terminal ERROR/CANCELLED is a failure.
		if current := s.snapshot(session.ID); current == nil ||
			current.Status == model.SessionStatusError ||
			current.Status == model.SessionStatusCancelled {
			return nil, apperrors.InvalidSessionState("Session terminated before delivery was recorded")
		}
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventSessionStart,
		DeviceID:  params.TabletID,
		CompanyID: params.CompanyID,
		SessionID: session.ID,
	})
	log.Info().
		Str("sessionId", session.ID).
		Str("tabletId", params.TabletID).
		Str("documentId", params.DocumentID).
		Time("expiresAt", session.ExpiresAt).
		Msg("signature session started")

	return s.snapshot(session.ID), nil
}

// AcknowledgeSession records that the tablet received the render payload and
// began capture.
func (s *SignatureService) AcknowledgeSession(ctx context.Context, sessionID, tabletID string) error {
	session := s.snapshot(sessionID)
	if session == nil || session.TabletID != tabletID {
		return apperrors.SessionNotFound()
	}
	if s.expireIfDue(ctx, sessionID) {
		return apperrors.SessionExpired()
	}
	// PENDING is accepted too: the tablet can acknowledge before the
	// coordinator has recorded the confirmed send.
	if !s.transition(sessionID, model.SessionStatusInProgress, "",
		model.SessionStatusSentToTablet, model.SessionStatusPending) {
		return apperrors.InvalidSessionState("Session is not awaiting acknowledgement")
	}
	log.Debug().Str("sessionId", sessionID).Msg("tablet acknowledged signature request")
	return nil
}

type CompletionResult struct {
	SessionID   string    `json:"sessionId"`
	DocumentID  string    `json:"documentId"`
	Status      string    `json:"status"`
	CompletedAt time.Time `json:"completedAt"`
}

// CompleteSession accepts the captured signature image, finalizes the signed
// document through the collaborator store and notifies the workstation.
// COMPLETED is committed only after the store succeeds; until then the
// finalize guard keeps every other transition out, so a session never claims
// success for a signature that was not persisted. A terminal session is never
// finalized twice.
func (s *SignatureService) CompleteSession(ctx context.Context, sessionID, tabletID string, image []byte) (*CompletionResult, error) {
	session := s.snapshot(sessionID)
	if session == nil || session.TabletID != tabletID {
		return nil, apperrors.SessionNotFound()
	}
	if s.expireIfDue(ctx, sessionID) {
		return nil, apperrors.SessionExpired()
	}

	if !s.beginFinalize(sessionID) {
		return nil, apperrors.InvalidSessionState("Session is already finalized")
	}

	if err := s.validateSignatureImage(image); err != nil {
		s.abortFinalize(ctx, session, "signature validation failed")
		return nil, err
	}

	if !s.cache.Update(sessionID, session.CompanyID, func(a *cache.Artifact) {
		a.Signature = image
	}) {
		// Artifact evicted underneath a live session; the workstation must
		// restart the workflow.
		s.abortFinalize(ctx, session, "signed document assembly failed")
		return nil, apperrors.Internal("Cached document no longer available")
	}

	artifact := s.cache.Get(sessionID, session.CompanyID)
	if err := s.store.StoreSignedDocument(ctx, session.CompanyID, sessionID, session.DocumentID,
		artifact.Document, artifact.Signature, artifact.SignerName); err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to persist signed document")
		s.abortFinalize(ctx, session, "signed document persistence failed")
		return nil, apperrors.External("signed document store", err)
	}

	completedAt := s.now()
	s.commitFinalize(sessionID, model.SessionStatusCompleted, "")
	s.cache.Remove(sessionID)

	s.notifyWorkstation(ctx, session, EventSessionCompleted, "")

	audit.Log(ctx, audit.Event{
		Type:      audit.EventSessionComplete,
		DeviceID:  tabletID,
		CompanyID: session.CompanyID,
		SessionID: sessionID,
	})
	log.Info().
		Str("sessionId", sessionID).
		Str("tabletId", tabletID).
		Msg("signature session completed")

	return &CompletionResult{
		SessionID:   sessionID,
		DocumentID:  session.DocumentID,
		Status:      string(model.SessionStatusCompleted),
		CompletedAt: completedAt,
	}, nil
}

// CancelSession moves a session to CANCELLED. Cancelling an already-terminal
// session is a no-op, not an error.
func (s *SignatureService) CancelSession(ctx context.Context, sessionID, companyID, reason string) error {
	session := s.snapshot(sessionID)
	if session == nil || session.CompanyID != companyID {
		if session != nil {
			audit.Log(ctx, audit.Event{
				Type:      audit.EventCompanyMismatch,
				CompanyID: companyID,
				SessionID: sessionID,
			})
		}
		return apperrors.SessionNotFound()
	}

	if reason == "" {
		reason = "cancelled by workstation"
	}
	if !s.transition(sessionID, model.SessionStatusCancelled, reason, nonTerminalStatuses...) {
		return nil
	}

	s.cache.Remove(sessionID)
	if event, err := hub.NewEvent(EventSessionCancelled, map[string]string{
		"sessionId": sessionID,
		"reason":    reason,
	}); err == nil {
		s.conns.Send(ctx, session.TabletID, hub.RoleTablet, event)
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventSessionCancel,
		CompanyID: companyID,
		SessionID: sessionID,
		Details:   map[string]interface{}{"reason": reason},
	})
	log.Info().Str("sessionId", sessionID).Str("reason", reason).Msg("signature session cancelled")
	return nil
}

// GetSession returns a tenant-scoped snapshot for status polling, applying
// lazy expiry first.
func (s *SignatureService) GetSession(ctx context.Context, sessionID, companyID string) (*model.SignatureSession, error) {
	session := s.snapshot(sessionID)
	if session == nil || session.CompanyID != companyID {
		return nil, apperrors.SessionNotFound()
	}
	s.expireIfDue(ctx, sessionID)
	return s.snapshot(sessionID), nil
}

// SweepExpired forces every overdue non-terminal session into ERROR and
// prunes terminal sessions past their deadline. Runs on the cleanup ticker,
// independent of request traffic.
func (s *SignatureService) SweepExpired(ctx context.Context) int {
	now := s.now()

	s.mu.Lock()
	due := make([]string, 0)
	prune := make([]string, 0)
	for id, session := range s.sessions {
		if !session.IsExpired(now) || s.finalizing[id] {
			continue
		}
		if session.Status.IsTerminal() {
			prune = append(prune, id)
		} else {
			due = append(due, id)
		}
	}
	for _, id := range prune {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, id := range due {
		s.expire(ctx, id)
	}
	if len(due) > 0 {
		log.Info().Int("count", len(due)).Msg("expired overdue signature sessions")
	}
	return len(due)
}

var nonTerminalStatuses = []model.SessionStatus{
	model.SessionStatusPending,
	model.SessionStatusSentToTablet,
	model.SessionStatusInProgress,
}

// beginFinalize reserves a session for completion. While the reservation
// holds, no other transition can touch the session, so an expiry sweep or a
// concurrent upload cannot interleave with the store call.
func (s *SignatureService) beginFinalize(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok || s.finalizing[sessionID] {
		return false
	}
	if session.Status != model.SessionStatusSentToTablet &&
		session.Status != model.SessionStatusInProgress {
		return false
	}
	s.finalizing[sessionID] = true
	return true
}

// commitFinalize releases the finalize reservation and commits the terminal
// status in one critical section, leaving no window for a sweep to slip in.
func (s *SignatureService) commitFinalize(sessionID string, to model.SessionStatus, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.finalizing, sessionID)
	session, ok := s.sessions[sessionID]
	if !ok || session.Status.IsTerminal() {
		return
	}
	session.Status = to
	session.StatusReason = reason
	if s.byTablet[session.TabletID] == sessionID {
		delete(s.byTablet, session.TabletID)
	}
}

// abortFinalize drives a reserved completion to ERROR and reports it, freeing
// the tablet so the workstation can restart the workflow.
func (s *SignatureService) abortFinalize(ctx context.Context, session *model.SignatureSession, reason string) {
	s.commitFinalize(session.ID, model.SessionStatusError, reason)
	s.reportError(ctx, session, reason)
}

// transition commits status atomically if the session currently holds one of
// the from statuses. Losing the race reports false and mutates nothing.
func (s *SignatureService) transition(sessionID string, to model.SessionStatus, reason string, from ...model.SessionStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok || s.finalizing[sessionID] {
		return false
	}
	allowed := false
	for _, status := range from {
		if session.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}

	session.Status = to
	session.StatusReason = reason
	if to.IsTerminal() && s.byTablet[session.TabletID] == sessionID {
		delete(s.byTablet, session.TabletID)
	}
	return true
}

func (s *SignatureService) snapshot(sessionID string) *model.SignatureSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	copied := *session
	return &copied
}

// expireIfDue applies lazy expiry on access; expiresAt is the single source
// of truth and is never extended.
func (s *SignatureService) expireIfDue(ctx context.Context, sessionID string) bool {
	session := s.snapshot(sessionID)
	if session == nil || session.Status.IsTerminal() || !session.IsExpired(s.now()) {
		return false
	}
	s.expire(ctx, sessionID)
	return true
}

func (s *SignatureService) expire(ctx context.Context, sessionID string) {
	session := s.snapshot(sessionID)
	if session == nil {
		return
	}
	if !s.transition(sessionID, model.SessionStatusError, "session timeout", nonTerminalStatuses...) {
		return
	}
	s.cache.Remove(sessionID)

	if event, err := hub.NewEvent(EventSessionError, map[string]string{
		"sessionId": sessionID,
		"reason":    "session timeout",
	}); err == nil {
		s.conns.Send(ctx, session.TabletID, hub.RoleTablet, event)
	}
	s.notifyWorkstation(ctx, session, EventSessionError, "session timeout")

	audit.Log(ctx, audit.Event{
		Type:      audit.EventSessionError,
		DeviceID:  session.TabletID,
		CompanyID: session.CompanyID,
		SessionID: sessionID,
		Details:   map[string]interface{}{"reason": "session timeout"},
	})
	log.Warn().Str("sessionId", sessionID).Msg("signature session expired")
}

// fail moves a session to ERROR with a reason and informs the workstation.
func (s *SignatureService) fail(ctx context.Context, sessionID, reason string) {
	session := s.snapshot(sessionID)
	if session == nil {
		return
	}
	if !s.transition(sessionID, model.SessionStatusError, reason, nonTerminalStatuses...) {
		return
	}
	s.reportError(ctx, session, reason)
}

func (s *SignatureService) reportError(ctx context.Context, session *model.SignatureSession, reason string) {
	s.cache.Remove(session.ID)
	s.notifyWorkstation(ctx, session, EventSessionError, reason)

	audit.Log(ctx, audit.Event{
		Type:      audit.EventSessionError,
		DeviceID:  session.TabletID,
		CompanyID: session.CompanyID,
		SessionID: session.ID,
		Details:   map[string]interface{}{"reason": reason},
	})
	log.Warn().Str("sessionId", session.ID).Str("reason", reason).Msg("signature session failed")
}

// handleDisconnect is wired to the hub: a tablet dropping mid-session drives
// its session to ERROR.
func (s *SignatureService) handleDisconnect(deviceID string, role hub.Role, reason string) {
	if role != hub.RoleTablet {
		return
	}

	s.mu.Lock()
	sessionID, ok := s.byTablet[deviceID]
	s.mu.Unlock()
	if !ok {
		return
	}

	s.fail(context.Background(), sessionID, "peer disconnected")
}

func (s *SignatureService) notifyWorkstation(ctx context.Context, session *model.SignatureSession, eventType, reason string) {
	payload := map[string]string{
		"sessionId":  session.ID,
		"documentId": session.DocumentID,
		"tabletId":   session.TabletID,
	}
	if reason != "" {
		payload["reason"] = reason
	}

	event, err := hub.NewEvent(eventType, payload)
	if err != nil {
		return
	}
	if err := s.conns.BroadcastToWorkstation(ctx, session.WorkstationID, event); err != nil {
		log.Error().Err(err).
			Str("sessionId", session.ID).
			Str("workstationId", session.WorkstationID).
			Msg("failed to notify workstation")
	}
}

func (s *SignatureService) validateSignatureImage(image []byte) error {
	if len(image) == 0 {
		return apperrors.InvalidSignatureFormat("empty image")
	}
	if int64(len(image)) > s.maxImageBytes {
		return apperrors.InvalidSignatureFormat("image exceeds size limit")
	}
	if !bytes.HasPrefix(image, pngMagic) && !bytes.HasPrefix(image, jpegMagic) {
		return apperrors.InvalidSignatureFormat("image must be PNG or JPEG")
	}
	return nil
}
