package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/photo-wall/internal/apperror"
	"github.com/sakif/photo-wall/internal/broadcast"
	"github.com/sakif/photo-wall/internal/contentstore"
	"github.com/sakif/photo-wall/internal/model"
	"github.com/sakif/photo-wall/internal/repository"
)

// MaxCaptionLength matches the Telegram photo caption limit, so a caption
// that passes here is never the reason a store handoff fails.
const MaxCaptionLength = 1024

// Publisher is where admitted photos are announced. *broadcast.Hub is the
// production implementation.
type Publisher interface {
	Publish(e broadcast.Event) int
}

// Submission is one upload as the handler received it.
type Submission struct {
	UserID      string
	Body        io.Reader
	Size        int64 // bytes in Body; 0 means no payload
	Filename    string
	ContentType string
	Caption     string
}

// Admission is a successful Submit: the recorded photo and the owner's
// ledger after the charge.
type Admission struct {
	Photo *model.Photo
	User  *model.User
}

// AdmissionService runs the upload pipeline and serves stored photos back.
type AdmissionService struct {
	users        repository.UserRepository
	photos       repository.PhotoRepository
	store        contentstore.Store
	publisher    Publisher
	storeTimeout time.Duration
	logger       *slog.Logger
}

// NewAdmissionService creates an AdmissionService. storeTimeout bounds each
// content-store call; 0 means no bound beyond the caller's context.
func NewAdmissionService(
	users repository.UserRepository,
	photos repository.PhotoRepository,
	store contentstore.Store,
	publisher Publisher,
	storeTimeout time.Duration,
	logger *slog.Logger,
) *AdmissionService {
	return &AdmissionService{
		users:        users,
		photos:       photos,
		store:        store,
		publisher:    publisher,
		storeTimeout: storeTimeout,
		logger:       logger,
	}
}

// Submit admits one photo.
//
// THE PIPELINE (each step's failure stops the rest):
//
//  1. Re-read the identity. Missing or inactive → Unauthenticated.
//     The token only proves who the caller is; quota comes from this read.
//  2. Quota ≤ 0 → QuotaExhausted.
//  3. Empty payload → NoPayload.
//  4. Hand the bytes to the content store → UpstreamStoreError on failure.
//     Nothing has been charged yet.
//  5. Record the photo and charge the ledger in one transaction
//     → PersistError on failure. The stored object is now an orphan; it is
//     logged and left alone.
//  6. Announce the photo on the broadcast channel.
//
// NOT CANCELLABLE MIDWAY:
// Steps 4 onward run on a context detached from ctx. A camera that drops
// its connection after the upload started still gets its photo recorded
// and charged, instead of leaving a stored object with no record.
func (s *AdmissionService) Submit(ctx context.Context, sub Submission) (*Admission, error) {
	user, err := s.users.GetUserByID(ctx, sub.UserID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthenticated("User not found")
		}
		return nil, fmt.Errorf("service/admission: loading user %s: %w", sub.UserID, err)
	}
	if !user.Active {
		return nil, apperror.Unauthenticated("User is inactive")
	}

	if user.Quota <= 0 {
		return nil, apperror.QuotaExhausted()
	}

	if sub.Body == nil || sub.Size <= 0 {
		return nil, apperror.NoPayload()
	}

	caption := strings.TrimSpace(sub.Caption)
	if utf8.RuneCountInString(caption) > MaxCaptionLength {
		return nil, apperror.ValidationFailed("caption",
			fmt.Sprintf("caption must be %d characters or less", MaxCaptionLength))
	}

	detached := context.WithoutCancel(ctx)

	storeCtx, cancel := withTimeout(detached, s.storeTimeout)
	ref, err := s.store.Put(storeCtx, contentstore.Object{
		Body:        sub.Body,
		Filename:    sub.Filename,
		ContentType: sub.ContentType,
		Caption:     caption,
	})
	cancel()
	if err != nil {
		s.logger.Error("content store handoff failed",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, apperror.UpstreamStore(err)
	}

	photo := &model.Photo{
		UserID:     user.ID,
		ContentRef: ref,
		Caption:    caption,
	}
	owner, err := s.photos.CreateChargedPhoto(detached, photo)
	if err != nil {
		s.logger.Warn("orphaned content object",
			slog.String("contentRef", ref),
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
		// Quota ran out between step 2 and the charge: another upload from
		// the same identity got there first.
		if errors.Is(err, apperror.ErrQuotaExhausted) {
			return nil, apperror.QuotaExhausted()
		}
		return nil, apperror.Persist(err)
	}

	delivered := s.publisher.Publish(broadcast.EventFor(photo))

	s.logger.Info("photo admitted",
		slog.String("photoID", photo.ID),
		slog.String("userID", owner.ID),
		slog.String("contentRef", ref),
		slog.Int("quotaRemaining", owner.Quota),
		slog.Int("walls", delivered),
	)

	return &Admission{Photo: photo, User: owner}, nil
}

// ListPhotos returns every admitted photo, most recent first.
func (s *AdmissionService) ListPhotos(ctx context.Context) ([]model.Photo, error) {
	photos, err := s.photos.ListPhotos(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/admission: listing photos: %w", err)
	}
	return photos, nil
}

// ResolveContent fetches the bytes behind ref from the content store.
//
// The store timeout covers the whole transfer, not just the first byte: the
// returned body carries the deadline and releases it on Close. The caller
// must close Content.Body.
func (s *AdmissionService) ResolveContent(ctx context.Context, ref string) (*contentstore.Content, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, apperror.NotFound("photo", ref)
	}

	resolveCtx, cancel := withTimeout(ctx, s.storeTimeout)
	content, err := s.store.Resolve(resolveCtx, ref)
	if err != nil {
		cancel()
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("content resolve failed",
			slog.String("contentRef", ref),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Upstream(err)
	}

	content.Body = &cancelOnClose{ReadCloser: content.Body, cancel: cancel}
	return content, nil
}

// cancelOnClose releases a context when the body it guards is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}
