package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/photo-wall/internal/apperror"
	"github.com/sakif/photo-wall/internal/auth"
	"github.com/sakif/photo-wall/internal/model"
	"github.com/sakif/photo-wall/internal/service"
)

// AuthHandler serves the one-time-code login flow.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRequestCode → POST /api/auth    {email}        → code mailed
//   - HandleVerify      → POST /api/verify  {email, otp}   → {token, user}
//   - HandleMe          → GET  /api/user    (bearer token) → current user
//
// The token goes back in the JSON body, not a cookie: cameras send it as
// "Authorization: Bearer <token>" on every upload.
type AuthHandler struct {
	creds  *service.CredentialService
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(creds *service.CredentialService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{creds: creds, logger: logger}
}

type requestCodeRequest struct {
	Email string `json:"email"`
}

type verifyRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type verifyResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// HandleRequestCode issues a code for an email address.
//
// HTTP: POST /api/auth
// A delivery failure is a 502: the code was stored, but the camera operator
// will never see it, so asking again is the only way forward.
func (h *AuthHandler) HandleRequestCode(w http.ResponseWriter, r *http.Request) {
	var req requestCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.creds.RequestCode(r.Context(), req.Email); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "OTP sent to email"})
}

// HandleVerify trades an email + code for a session token.
//
// HTTP: POST /api/verify
func (h *AuthHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.creds.VerifyCode(r.Context(), req.Email, req.OTP)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{Token: res.Token, User: res.User})
}

// HandleMe returns the caller's identity, re-read from the record store so
// quota and photo count are current.
//
// HTTP: GET /api/user (behind auth.RequireAuth)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, apperror.Unauthenticated("Missing authorization token"))
		return
	}

	user, err := h.creds.CurrentUser(r.Context(), p.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}
