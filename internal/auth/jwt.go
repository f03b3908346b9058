// Package auth issues and checks the credentials a camera presents to the
// wall server: one-time codes sent by email, and the session tokens minted
// once a code is verified.
//
// LOGIN FLOW OVERVIEW:
//  1. Camera posts an email to /api/auth → a 6-digit code is emailed
//  2. Camera posts email + code to /api/verify → server mints a session token
//  3. Camera sends "Authorization: Bearer <token>" on every upload
//  4. The Guard checks signature and expiry only. Quota is NOT in the token;
//     the admission pipeline re-reads the user record on every upload.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"userID","role":"user","exp":1234567890,"iss":"photo-wall"}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/photo-wall/internal/clock"
)

const (
	issuer = "photo-wall"

	// DefaultTokenTTL is how long a session token stays valid. A camera at
	// an event logs in once and keeps shooting for the day.
	DefaultTokenTTL = 24 * time.Hour
)

// TokenService handles JWT creation and validation.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

// TokenOption customises a TokenService.
type TokenOption func(*TokenService)

// WithTokenTTL overrides DefaultTokenTTL.
func WithTokenTTL(d time.Duration) TokenOption {
	return func(s *TokenService) { s.ttl = d }
}

// WithTokenClock sets the clock used both to stamp and to check expiry.
func WithTokenClock(c clock.Clock) TokenOption {
	return func(s *TokenService) { s.clock = c }
}

// NewTokenService creates a TokenService with the given secret.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, opts ...TokenOption) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	s := &TokenService{
		secret: []byte(secret),
		ttl:    DefaultTokenTTL,
		clock:  clock.RealClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Principal is what a valid token proves: who the bearer is and their role
// at the moment the token was minted.
type Principal struct {
	UserID string
	Role   string
}

// claims is the JWT payload. "sub" holds the user ID; role is a private claim.
type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Generate signs a session token for p with the configured lifetime.
func (s *TokenService) Generate(p Principal) (string, error) {
	return s.GenerateWithDuration(p, s.ttl)
}

// GenerateWithDuration signs a token that expires after d. Tests use a
// negative d to get an already-expired token.
func (s *TokenService) GenerateWithDuration(p Principal, d time.Duration) (string, error) {
	now := s.clock.Now()

	c := claims{
		Role: p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a JWT string and returns the principal in it.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid
//   - Token is not expired, measured against the service's clock
//   - Issuer is "photo-wall"
//   - Algorithm is HS256 (blocks "alg":"none" and algorithm confusion)
func (s *TokenService) Validate(tokenStr string) (Principal, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, fmt.Errorf("auth: token expired")
		}
		return Principal{}, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return Principal{}, fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return Principal{}, fmt.Errorf("auth: token has no subject")
	}

	return Principal{UserID: c.Subject, Role: c.Role}, nil
}
