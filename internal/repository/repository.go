// Package repository declares the record-store interfaces the services depend on.
// internal/repository/sqlite is the production implementation; tests use fakes.
package repository

import (
	"context"

	"github.com/sakif/photo-wall/internal/model"
)

type UserRepository interface {
	// GetOrCreateByEmail returns the identity for email, creating it with
	// the given default quota when it does not exist yet.
	GetOrCreateByEmail(ctx context.Context, email string, defaultQuota int) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

type CredentialRepository interface {
	// UpsertCredential replaces the live credential for cred.Email in one
	// statement. Concurrent calls for the same email are last-write-wins.
	UpsertCredential(ctx context.Context, cred *model.Credential) error
	GetCredential(ctx context.Context, email string) (*model.Credential, error)
	// ConsumeCredential marks the credential holding codeHash as used and
	// reports whether this call was the one that did it.
	ConsumeCredential(ctx context.Context, email, codeHash string) (bool, error)
}

type PhotoRepository interface {
	// CreateChargedPhoto records photo and charges its owner's quota in one
	// transaction. It returns the owner's updated ledger, or an error wrapping
	// apperror.ErrQuotaExhausted when the owner had no quota left, in which
	// case nothing is recorded.
	CreateChargedPhoto(ctx context.Context, photo *model.Photo) (*model.User, error)
	// ListPhotos returns every photo, most recent first.
	ListPhotos(ctx context.Context) ([]model.Photo, error)
	GetPhotoByContentRef(ctx context.Context, ref string) (*model.Photo, error)
}
