package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sakif/photo-wall/internal/apperror"
)

// contextKey is unexported so no other package can read or shadow the
// principal stored in a request context.
type contextKey string

const principalKey contextKey = "principal"

// Guard authenticates requests by their bearer token.
//
// It answers one question, "who signed this request?", and returns either a
// Principal or an apperror.ErrUnauthenticated. It checks the token only.
// Whether that user still exists, is active, or has quota left is decided by
// the service that handles the request, from the live user record.
type Guard struct {
	tokens *TokenService
}

// NewGuard creates a Guard backed by tokens.
func NewGuard(tokens *TokenService) *Guard {
	return &Guard{tokens: tokens}
}

// Authenticate reads "Authorization: Bearer <token>" from r and validates it.
func (g *Guard) Authenticate(r *http.Request) (Principal, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return Principal{}, apperror.Unauthenticated("Missing authorization token")
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return Principal{}, apperror.Unauthenticated("Malformed authorization header")
	}

	p, err := g.tokens.Validate(strings.TrimSpace(token))
	if err != nil {
		return Principal{}, apperror.Unauthenticated("Invalid or expired token")
	}
	return p, nil
}

// RequireAuth is a middleware that rejects requests without a valid bearer
// token and stores the Principal in the context of the ones it lets through.
//
// Chi applies middlewares in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
func RequireAuth(g *Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := g.Authenticate(r)
			if err != nil {
				writeUnauthorized(w, err)
				return
			}

			ctx := WithPrincipal(r.Context(), p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext retrieves the authenticated principal.
// Returns (Principal{}, false) when the request did not pass RequireAuth.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok && p.UserID != ""
}

// writeUnauthorized renders the same {"error","message"} shape the handler
// package uses. auth cannot import handler, so the body is built here.
func writeUnauthorized(w http.ResponseWriter, err error) {
	msg := "Valid authentication required"
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   apperror.KindUnauthenticated,
		"message": msg,
	})
}
