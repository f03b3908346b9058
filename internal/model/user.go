// Package model defines the data structures used throughout the application.
package model

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is an Identity: an email-based account with a submission quota.
//
// QUOTA LEDGER:
// Quota and PhotoCount form the per-identity ledger. They only ever change
// together, in one conditional UPDATE issued by the admission pipeline:
// quota goes down by one and photo_count goes up by one, and only while
// quota is still positive. Nothing else writes these columns.
type User struct {
	ID         string    `json:"id"         db:"id"`
	Email      string    `json:"email"      db:"email"`
	Role       string    `json:"role"       db:"role"`
	Active     bool      `json:"-"          db:"is_active"`
	Quota      int       `json:"limit"      db:"quota_remaining"` // remaining submissions, never negative
	PhotoCount int       `json:"photoCount" db:"photo_count"`     // lifetime admitted submissions
	CreatedAt  time.Time `json:"createdAt"  db:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt"  db:"updated_at"`
}
