package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Authentication & Authorization
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden          ErrorCode = "FORBIDDEN"
	ErrCodeInvalidDeviceToken ErrorCode = "INVALID_DEVICE_TOKEN"
	ErrCodeUnauthorizedTablet ErrorCode = "UNAUTHORIZED_TABLET"

	// Validation
	ErrCodeValidation             ErrorCode = "VALIDATION_ERROR"
	ErrCodeMissingRequired        ErrorCode = "MISSING_REQUIRED"
	ErrCodeInvalidSignatureFormat ErrorCode = "INVALID_SIGNATURE_FORMAT"

	// Pairing
	ErrCodeInvalidPairingCode ErrorCode = "INVALID_PAIRING_CODE"
	ErrCodeTooManyActiveCodes ErrorCode = "TOO_MANY_ACTIVE_CODES"

	// Devices
	ErrCodeTabletNotFound      ErrorCode = "TABLET_NOT_FOUND"
	ErrCodeTabletNotAvailable  ErrorCode = "TABLET_NOT_AVAILABLE"
	ErrCodeWorkstationNotFound ErrorCode = "WORKSTATION_NOT_FOUND"

	// Signature sessions
	ErrCodeSessionNotFound     ErrorCode = "SIGNATURE_SESSION_NOT_FOUND"
	ErrCodeSessionExpired      ErrorCode = "SESSION_EXPIRED"
	ErrCodeInvalidSessionState ErrorCode = "INVALID_SESSION_STATE"

	// Rate Limiting
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
	ErrCodeExternal ErrorCode = "EXTERNAL_SERVICE_ERROR"
)

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func Forbidden(message string) *AppError {
	return New(ErrCodeForbidden, message)
}

func InvalidDeviceToken() *AppError {
	return New(ErrCodeInvalidDeviceToken, "Invalid device token")
}

// InvalidPairingCode deliberately covers unknown, consumed and expired codes
// with a single message so a caller cannot probe code state.
func InvalidPairingCode() *AppError {
	return New(ErrCodeInvalidPairingCode, "Invalid or expired pairing code")
}

func TooManyActiveCodes(max int) *AppError {
	return New(ErrCodeTooManyActiveCodes, fmt.Sprintf("Maximum of %d active pairing codes reached", max))
}

func TabletNotFound() *AppError {
	return New(ErrCodeTabletNotFound, "Tablet not found")
}

func TabletNotAvailable(reason string) *AppError {
	return New(ErrCodeTabletNotAvailable, fmt.Sprintf("Tablet not available: %s", reason))
}

func UnauthorizedTablet() *AppError {
	return New(ErrCodeUnauthorizedTablet, "Tablet does not belong to this company")
}

func WorkstationNotFound() *AppError {
	return New(ErrCodeWorkstationNotFound, "Workstation not found")
}

func SessionNotFound() *AppError {
	return New(ErrCodeSessionNotFound, "Signature session not found")
}

func SessionExpired() *AppError {
	return New(ErrCodeSessionExpired, "Signature session has expired")
}

func InvalidSessionState(message string) *AppError {
	return New(ErrCodeInvalidSessionState, message)
}

func InvalidSignatureFormat(reason string) *AppError {
	return New(ErrCodeInvalidSignatureFormat, fmt.Sprintf("Invalid signature image: %s", reason))
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s is required", field))
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded")
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", cause)
}

func External(service string, cause error) *AppError {
	return Wrap(ErrCodeExternal, fmt.Sprintf("External service error: %s", service), cause)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}
