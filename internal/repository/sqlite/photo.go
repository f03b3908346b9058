package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sakif/photo-wall/internal/apperror"
	"github.com/sakif/photo-wall/internal/model"
	"github.com/sakif/photo-wall/internal/repository"
)

var _ repository.PhotoRepository = (*DB)(nil)

// CreateChargedPhoto records photo and charges one unit of its owner's quota.
//
// ONE TRANSACTION, CONDITIONAL UPDATE:
// The charge is
//
//	UPDATE users SET quota_remaining = quota_remaining - 1, photo_count = photo_count + 1
//	WHERE id = ? AND quota_remaining > 0
//
// so it is a compare-and-swap on the ledger row: with quota 1 and two racing
// submissions, exactly one UPDATE matches a row and the other sees zero rows
// affected. The zero-rows case rolls back the photo insert too, so a refused
// charge never leaves a recorded photo behind.
func (db *DB) CreateChargedPhoto(ctx context.Context, photo *model.Photo) (*model.User, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: beginning admission tx: %w", err)
	}
	// Rollback after a successful Commit is a no-op.
	defer tx.Rollback()

	photo.ID = db.ids.New()
	photo.CreatedAt = db.now()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO photos (id, user_id, content_ref, caption, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		photo.ID,
		photo.UserID,
		photo.ContentRef,
		photo.Caption,
		photo.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("sqlite: inserting photo %s: %w", photo.ContentRef, err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE users
		 SET quota_remaining = quota_remaining - 1,
		     photo_count     = photo_count + 1,
		     updated_at      = ?
		 WHERE id = ? AND quota_remaining > 0`,
		photo.CreatedAt,
		photo.UserID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: charging quota for %s: %w", photo.UserID, err)
	}
	charged, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if charged == 0 {
		return nil, apperror.QuotaExhausted()
	}

	owner, err := scanUser(tx.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, photo.UserID))
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading charged user %s: %w", photo.UserID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: committing admission: %w", err)
	}
	return owner, nil
}

// ListPhotos returns every photo, most recent first. rowid breaks ties
// between photos stamped within the same instant.
func (db *DB) ListPhotos(ctx context.Context) ([]model.Photo, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, content_ref, caption, created_at
		 FROM photos
		 ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing photos: %w", err)
	}
	defer rows.Close()

	photos := make([]model.Photo, 0)
	for rows.Next() {
		var p model.Photo
		if err := rows.Scan(&p.ID, &p.UserID, &p.ContentRef, &p.Caption, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning photo row: %w", err)
		}
		photos = append(photos, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating photos: %w", err)
	}

	return photos, nil
}

// GetPhotoByContentRef looks a photo up by its content-store reference.
func (db *DB) GetPhotoByContentRef(ctx context.Context, ref string) (*model.Photo, error) {
	var p model.Photo
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, content_ref, caption, created_at
		 FROM photos WHERE content_ref = ?`,
		ref,
	).Scan(&p.ID, &p.UserID, &p.ContentRef, &p.Caption, &p.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("photo", ref)
		}
		return nil, fmt.Errorf("sqlite: getting photo %s: %w", ref, err)
	}
	return &p, nil
}
