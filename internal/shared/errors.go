package shared

import "errors"

// Error taxonomy shared by the store, the ingestion service, the worker and the HTTP layer.
// Callers wrap these with fmt.Errorf("...: %w", err) and match with errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrQuotaExceeded       = errors.New("daily message quota exceeded")
	ErrDispatchUnavailable = errors.New("task dispatcher unavailable")
	ErrProvider            = errors.New("ai provider error")
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrDuplicateReply      = errors.New("reply already exists for message")
	ErrConflict            = errors.New("conflict")
	ErrInvalidOTP          = errors.New("invalid or expired otp")
	ErrInvalidInput        = errors.New("invalid input")
)
