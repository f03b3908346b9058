package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// CONSISTENT ERROR FORMAT:
// Every error response from the API has the same shape:
//
//	{"error": "quota_exhausted", "message": "Photo upload limit reached"}
//
// "error" is the machine-readable kind from apperror.KindOf; cameras branch
// on it (e.g. to show "out of shots" instead of a generic failure).

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sakif/photo-wall/internal/apperror"
)

// maxJSONBody bounds the small JSON requests (email, code).
const maxJSONBody = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable kind (e.g., "not_found")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Input field at fault, when there is one
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status go out before the body. Once Encode writes, any
// header change is silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; logging is all that's left.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// statusByKind maps each failure kind to its HTTP status. Anything not
// listed is a 500.
var statusByKind = map[string]int{
	apperror.KindValidation:       http.StatusBadRequest,
	apperror.KindInvalidEmail:     http.StatusBadRequest,
	apperror.KindNoPayload:        http.StatusBadRequest,
	apperror.KindInvalidOrExpired: http.StatusBadRequest,
	apperror.KindUnauthenticated:  http.StatusUnauthorized,
	apperror.KindQuotaExhausted:   http.StatusForbidden,
	apperror.KindNotFound:         http.StatusNotFound,
	apperror.KindDeliveryFailed:   http.StatusBadGateway,
	apperror.KindUpstreamStore:    http.StatusBadGateway,
	apperror.KindUpstream:         http.StatusBadGateway,
	apperror.KindPersist:          http.StatusInternalServerError,
}

// writeError maps a domain error to its HTTP status and sends it.
//
// ERROR MAPPING:
// The service layer returns apperror values and never mentions HTTP. This
// function is the one place kinds become status codes.
//
// Errors without an *AppError in their chain are internal: the client gets
// a generic message, and the real one goes to the log. Raw errors can carry
// SQL, file paths or upstream URLs.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		logger.Error("internal error", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   apperror.KindInternal,
			Message: "An internal error occurred",
		})
		return
	}

	kind := apperror.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError || status == http.StatusBadGateway {
		logger.Error("request failed",
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
	}

	writeJSON(w, status, ErrorResponse{
		Error:   kind,
		Message: appErr.Message,
		Field:   appErr.Field,
	})
}

// decodeJSON reads a small JSON body into dst. Malformed input is a
// validation failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.ValidationFailed("body", fmt.Sprintf("Invalid JSON body: %v", err))
	}
	return nil
}
