package httputil

import (
	"encoding/json"
	"net/http"
	"time"

	apperrors "github.com/werkstatthub/signpad-server-go/internal/errors"
)

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the standard error envelope. Every error path, including
// the 500 fallback, serializes to this shape.
type ErrorResponse struct {
	Success   bool                `json:"success"`
	Message   string              `json:"message"`
	Code      apperrors.ErrorCode `json:"code"`
	Timestamp int64               `json:"timestamp"`
	Details   any                 `json:"details,omitempty"`
}

// WriteError writes an AppError as an HTTP response with appropriate status code
func WriteError(w http.ResponseWriter, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		// Unknown errors become opaque internal errors; the cause stays in logs.
		appErr = apperrors.Internal("An unexpected error occurred")
	}

	WriteJSON(w, statusFromCode(appErr.Code), ErrorResponse{
		Success:   false,
		Message:   appErr.Message,
		Code:      appErr.Code,
		Timestamp: time.Now().UnixMilli(),
		Details:   appErr.Details,
	})
}

// statusFromCode maps ErrorCode to HTTP status code
func statusFromCode(code apperrors.ErrorCode) int {
	switch code {
	// 400 Bad Request
	case apperrors.ErrCodeValidation,
		apperrors.ErrCodeMissingRequired,
		apperrors.ErrCodeInvalidPairingCode,
		apperrors.ErrCodeInvalidSignatureFormat:
		return http.StatusBadRequest

	// 401 Unauthorized
	case apperrors.ErrCodeUnauthorized,
		apperrors.ErrCodeInvalidDeviceToken:
		return http.StatusUnauthorized

	// 403 Forbidden
	case apperrors.ErrCodeForbidden,
		apperrors.ErrCodeUnauthorizedTablet:
		return http.StatusForbidden

	// 404 Not Found
	case apperrors.ErrCodeTabletNotFound,
		apperrors.ErrCodeWorkstationNotFound,
		apperrors.ErrCodeSessionNotFound:
		return http.StatusNotFound

	// 409 Conflict
	case apperrors.ErrCodeInvalidSessionState:
		return http.StatusConflict

	// 410 Gone
	case apperrors.ErrCodeSessionExpired:
		return http.StatusGone

	// 429 Too Many Requests
	case apperrors.ErrCodeRateLimitExceeded,
		apperrors.ErrCodeTooManyActiveCodes:
		return http.StatusTooManyRequests

	// 502 Bad Gateway
	case apperrors.ErrCodeExternal:
		return http.StatusBadGateway

	// 503 Service Unavailable
	case apperrors.ErrCodeTabletNotAvailable:
		return http.StatusServiceUnavailable

	// 500 Internal Server Error
	case apperrors.ErrCodeInternal,
		apperrors.ErrCodeDatabase:
		return http.StatusInternalServerError

	default:
		return http.StatusInternalServerError
	}
}
