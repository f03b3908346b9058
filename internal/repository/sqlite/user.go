package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sakif/photo-wall/internal/apperror"
	"github.com/sakif/photo-wall/internal/model"
	"github.com/sakif/photo-wall/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, email, role, is_active, quota_remaining, photo_count, created_at, updated_at`

// GetOrCreateByEmail returns the user for email, inserting it first if needed.
//
// INSERT ... ON CONFLICT DO NOTHING:
// Two concurrent first-time requests for the same email both run the INSERT;
// the UNIQUE(email) constraint lets exactly one of them create the row and
// the other silently does nothing. Both then read back the same row. There is
// no read-then-insert window.
func (db *DB) GetOrCreateByEmail(ctx context.Context, email string, defaultQuota int) (*model.User, error) {
	now := db.now()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, email, role, is_active, quota_remaining, photo_count, created_at, updated_at)
		 VALUES (?, ?, ?, 1, ?, 0, ?, ?)
		 ON CONFLICT(email) DO NOTHING`,
		db.ids.New(),
		email,
		model.RoleUser,
		defaultQuota,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: inserting user %s: %w", email, err)
	}

	return db.GetUserByEmail(ctx, email)
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)

	u, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

// GetUserByEmail retrieves a user by email.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)

	u, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email %s: %w", email, err)
	}
	return u, nil
}

// SetUserActive flips the active flag; inactive users fail authentication.
func (db *DB) SetUserActive(ctx context.Context, id string, active bool) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, db.now(), id)
	if err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	if err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Role,
		&u.Active,
		&u.Quota,
		&u.PhotoCount,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &u, nil
}
