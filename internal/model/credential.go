package model

import "time"

// Credential is the one live one-time code for an email address.
//
// There is at most one row per email. Requesting a new code overwrites the
// previous row in place, so an older code can never verify once a newer one
// has been issued. CodeHash holds a bcrypt hash, never the plain code.
type Credential struct {
	Email      string     `db:"email"`
	CodeHash   string     `db:"code_hash"`
	IssuedAt   time.Time  `db:"issued_at"`
	ExpiresAt  time.Time  `db:"expires_at"`
	ConsumedAt *time.Time `db:"consumed_at"`
}

// Live reports whether the credential has not yet expired at now.
// Consumption is tracked separately: a consumed code cannot verify twice.
func (c *Credential) Live(now time.Time) bool {
	return now.Before(c.ExpiresAt)
}
