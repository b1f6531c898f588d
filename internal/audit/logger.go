package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventPairingCodeGenerate EventType = "pairing_code_generate"
	EventPairingCodeRedeem   EventType = "pairing_code_redeem"
	EventPairingCodeRejected EventType = "pairing_code_rejected"
	EventDeviceAuthFailure   EventType = "device_auth_failure"
	EventCompanyMismatch     EventType = "company_mismatch"
	EventRateLimitExceed     EventType = "rate_limit_exceeded"
	EventSessionStart        EventType = "session_start"
	EventSessionComplete     EventType = "session_complete"
	EventSessionCancel       EventType = "session_cancel"
	EventSessionError        EventType = "session_error"
)

type Event struct {
	Type      EventType
	DeviceID  string
	CompanyID string
	SessionID string
	IP        string
	UserAgent string
	Details   map[string]interface{}
}

func Log(ctx context.Context, event Event) {
	logger := log.With().
		Str("audit", "security").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.DeviceID != "" {
		logger = logger.With().Str("device_id", event.DeviceID).Logger()
	}
	if event.CompanyID != "" {
		logger = logger.With().Str("company_id", event.CompanyID).Logger()
	}
	if event.SessionID != "" {
		logger = logger.With().Str("session_id", event.SessionID).Logger()
	}
	if event.IP != "" {
		logger = logger.With().Str("ip", event.IP).Logger()
	}
	if event.UserAgent != "" {
		logger = logger.With().Str("user_agent", event.UserAgent).Logger()
	}

	logEvent := logger.Info()
	if isDenial(event.Type) {
		logEvent = logger.Warn()
	}
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("security audit event")
}

// Denials are treated as potential misuse and logged at warn.
func isDenial(t EventType) bool {
	switch t {
	case EventPairingCodeRejected, EventDeviceAuthFailure, EventCompanyMismatch, EventRateLimitExceed:
		return true
	}
	return false
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}

func LogFromRequest(r *http.Request, event Event) {
	event.IP = getClientIP(r)
	event.UserAgent = r.UserAgent()
	Log(r.Context(), event)
}

func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
