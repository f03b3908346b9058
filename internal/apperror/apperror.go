// Package apperror defines the typed failures every operation in the wall
// reports. Each failure wraps one sentinel so callers can branch with
// errors.Is, and the HTTP layer can map kinds to status codes in one place.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("Validation Error")
	ErrInvalidEmail     = errors.New("invalid email")
	ErrDeliveryFailed   = errors.New("delivery failed")
	ErrInvalidOrExpired = errors.New("invalid or expired credential")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrQuotaExhausted   = errors.New("quota exhausted")
	ErrNoPayload        = errors.New("no payload")
	ErrUpstreamStore    = errors.New("upstream store error")
	ErrUpstream         = errors.New("upstream error")
	ErrPersist          = errors.New("persist error")
)

// Kind strings are the machine-readable "error" field of API responses.
const (
	KindNotFound         = "not_found"
	KindValidation       = "validation_error"
	KindInvalidEmail     = "invalid_email"
	KindDeliveryFailed   = "delivery_failed"
	KindInvalidOrExpired = "invalid_or_expired"
	KindUnauthenticated  = "unauthenticated"
	KindQuotaExhausted   = "quota_exhausted"
	KindNoPayload        = "no_payload"
	KindUpstreamStore    = "upstream_store_error"
	KindUpstream         = "upstream_error"
	KindPersist          = "persist_error"
	KindInternal         = "internal_error"
)

// kinds is ordered: the first sentinel found in an error chain wins.
var kinds = []struct {
	err  error
	kind string
}{
	{ErrUnauthenticated, KindUnauthenticated},
	{ErrQuotaExhausted, KindQuotaExhausted},
	{ErrNoPayload, KindNoPayload},
	{ErrInvalidEmail, KindInvalidEmail},
	{ErrInvalidOrExpired, KindInvalidOrExpired},
	{ErrDeliveryFailed, KindDeliveryFailed},
	{ErrUpstreamStore, KindUpstreamStore},
	{ErrUpstream, KindUpstream},
	{ErrPersist, KindPersist},
	{ErrNotFound, KindNotFound},
	{ErrValidation, KindValidation},
}

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind string of the first taxonomy sentinel in err's
// chain, or KindInternal when err carries none.
func KindOf(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func InvalidEmail(message string) *AppError {
	return &AppError{
		Err:     ErrInvalidEmail,
		Message: message,
		Field:   "email",
	}
}

// DeliveryFailed reports that a code was issued but the mail collaborator
// could not deliver it. The issued code stays valid.
func DeliveryFailed(cause error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %w", ErrDeliveryFailed, cause),
		Message: "failed to deliver the one-time code, request a new one",
	}
}

func InvalidOrExpired() *AppError {
	return &AppError{
		Err:     ErrInvalidOrExpired,
		Message: "Invalid or expired OTP",
	}
}

func Unauthenticated(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: message,
	}
}

func QuotaExhausted() *AppError {
	return &AppError{
		Err:     ErrQuotaExhausted,
		Message: "Photo upload limit reached",
	}
}

func NoPayload() *AppError {
	return &AppError{
		Err:     ErrNoPayload,
		Message: "No file uploaded",
		Field:   "file",
	}
}

// UpstreamStore reports a failed or timed-out handoff to the content store.
func UpstreamStore(cause error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %w", ErrUpstreamStore, cause),
		Message: "content store rejected the upload",
	}
}

// Upstream reports a failed or timed-out content resolve.
func Upstream(cause error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %w", ErrUpstream, cause),
		Message: "failed to fetch photo",
	}
}

func Persist(cause error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %w", ErrPersist, cause),
		Message: "failed to record photo",
	}
}
