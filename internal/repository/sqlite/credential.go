package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sakif/photo-wall/internal/apperror"
	"github.com/sakif/photo-wall/internal/model"
	"github.com/sakif/photo-wall/internal/repository"
)

var _ repository.CredentialRepository = (*DB)(nil)

// UpsertCredential stores cred as the only live credential for its email.
//
// One statement, keyed on the email primary key: the row is inserted or
// overwritten atomically, and consumed_at is reset so the new code can be
// verified. Two racing requests end with one code/expiry pair from the same
// request, never a mix of both.
func (db *DB) UpsertCredential(ctx context.Context, cred *model.Credential) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO credentials (email, code_hash, issued_at, expires_at, consumed_at)
		 VALUES (?, ?, ?, ?, NULL)
		 ON CONFLICT(email) DO UPDATE SET
		     code_hash   = excluded.code_hash,
		     issued_at   = excluded.issued_at,
		     expires_at  = excluded.expires_at,
		     consumed_at = NULL`,
		cred.Email,
		cred.CodeHash,
		cred.IssuedAt.UTC(),
		cred.ExpiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting credential for %s: %w", cred.Email, err)
	}
	return nil
}

// GetCredential returns the most recently issued credential for email.
func (db *DB) GetCredential(ctx context.Context, email string) (*model.Credential, error) {
	var (
		c        model.Credential
		consumed sql.NullTime
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT email, code_hash, issued_at, expires_at, consumed_at
		 FROM credentials WHERE email = ?`,
		email,
	).Scan(&c.Email, &c.CodeHash, &c.IssuedAt, &c.ExpiresAt, &consumed)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("credential", email)
		}
		return nil, fmt.Errorf("sqlite: getting credential for %s: %w", email, err)
	}
	if consumed.Valid {
		t := consumed.Time
		c.ConsumedAt = &t
	}
	return &c, nil
}

// ConsumeCredential marks the credential with codeHash as used. It reports
// false when the row was already consumed or has since been replaced by a
// newer code, so two verifications racing on one code cannot both win.
// The row itself is kept.
func (db *DB) ConsumeCredential(ctx context.Context, email, codeHash string) (bool, error) {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE credentials SET consumed_at = ?
		 WHERE email = ? AND code_hash = ? AND consumed_at IS NULL`,
		db.now(), email, codeHash)
	if err != nil {
		return false, fmt.Errorf("sqlite: consuming credential for %s: %w", email, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n == 1, nil
}
