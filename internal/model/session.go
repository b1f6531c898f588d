package model

import "time"

type SessionStatus string

const (
	SessionStatusPending      SessionStatus = "PENDING"
	SessionStatusSentToTablet SessionStatus = "SENT_TO_TABLET"
	SessionStatusInProgress   SessionStatus = "IN_PROGRESS"
	SessionStatusCompleted    SessionStatus = "COMPLETED"
	SessionStatusCancelled    SessionStatus = "CANCELLED"
	SessionStatusError        SessionStatus = "ERROR"
)

// IsTerminal reports whether a session in this status can never transition
// again. Completion, cancellation and expiry all funnel into one of these.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusCancelled, SessionStatusError:
		return true
	}
	return false
}

// SignatureSession is one document-signing workflow between a workstation and
// a tablet. Sessions live in memory only; a process restart aborts them.
type SignatureSession struct {
	ID            string        `json:"id"`
	DocumentID    string        `json:"documentId"`
	TabletID      string        `json:"tabletId"`
	WorkstationID string        `json:"workstationId"`
	CompanyID     string        `json:"companyId"`
	SignerName    string        `json:"signerName"`
	Status        SessionStatus `json:"status"`
	StatusReason  string        `json:"statusReason,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	ExpiresAt     time.Time     `json:"expiresAt"`
}

func (s *SignatureSession) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
