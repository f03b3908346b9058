// Package service contains the business logic layer of the photo wall.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP / websocket) → parses requests, writes responses
//	Service (business layer)   → enforces rules, orchestrates collaborators
//	Repository (data layer)    → reads/writes the record store
//
// THE THREE SERVICES:
//
//	CredentialService → one-time codes by email, then a session token
//	AdmissionService  → the upload pipeline: auth, quota, store, charge, announce
//	WallFeed          → subscribes a display to new photos and seeds its grid
//
// ACCEPT PRIMITIVES, NOT HTTP TYPES:
// Every method takes plain values (an email string, an io.Reader, a
// viewport) and returns model types or apperror values. None of them know
// what a status code is. The handler package owns that translation, in one
// place (handler/response.go).
//
// DEPENDENCY INJECTION:
// Services take repository interfaces and small collaborator interfaces
// (mailer.Sender, contentstore.Store, Publisher), never concrete database
// or network types. The tests pass in-memory fakes; cmd/server passes the
// real sqlite, SMTP, Telegram or S3 implementations.
package service

import (
	"context"
	"time"
)

// withTimeout bounds a call to an external collaborator. A zero d means no
// bound beyond ctx itself.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
