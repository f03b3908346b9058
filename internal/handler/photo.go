package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/photo-wall/internal/apperror"
	"github.com/sakif/photo-wall/internal/auth"
	"github.com/sakif/photo-wall/internal/model"
	"github.com/sakif/photo-wall/internal/service"
)

const (
	// DefaultMaxUploadBytes caps one photo. Phone cameras rarely exceed 15 MB.
	DefaultMaxUploadBytes = 25 << 20

	// multipartMemory is how much of a form is held in memory before the
	// rest spills to temp files.
	multipartMemory = 8 << 20
)

// PhotoHandler serves uploads and the photo feed.
//
// ROUTES:
//
//	POST /api/upload                 → admit a photo (bearer token)
//	GET  /api/photos                 → every photo, most recent first
//	GET  /api/photos/content/{ref}   → the photo's bytes, streamed
type PhotoHandler struct {
	admission      *service.AdmissionService
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewPhotoHandler creates a PhotoHandler. maxUploadBytes ≤ 0 uses
// DefaultMaxUploadBytes.
func NewPhotoHandler(admission *service.AdmissionService, maxUploadBytes int64, logger *slog.Logger) *PhotoHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &PhotoHandler{admission: admission, maxUploadBytes: maxUploadBytes, logger: logger}
}

type uploadResponse struct {
	Photo *model.Photo `json:"photo"`
	User  *model.User  `json:"user"`
}

type photoListResponse struct {
	Photos []model.Photo `json:"photos"`
}

// HandleUpload admits one photo from a multipart form.
//
// HTTP: POST /api/upload (behind auth.RequireAuth)
// FORM FIELDS: file (the image), caption (optional)
//
// A form with no file is not rejected here. The submission goes to the
// service with no body, so an exhausted quota is still reported as such
// before the missing payload is.
func (h *PhotoHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, apperror.Unauthenticated("Missing authorization token"))
		return
	}

	// Headroom for the caption and multipart framing.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+(1<<20))

	sub := service.Submission{UserID: p.UserID}

	err := r.ParseMultipartForm(multipartMemory)
	switch {
	case err == nil:
		defer r.MultipartForm.RemoveAll()
	case isTooLarge(err):
		h.writeTooLarge(w)
		return
	case errors.Is(err, http.ErrNotMultipart), errors.Is(err, http.ErrMissingBoundary):
		// No form at all: the service reports NoPayload after its own checks.
	default:
		writeError(w, h.logger, apperror.ValidationFailed("file", "Malformed upload form"))
		return
	}

	if r.MultipartForm != nil {
		sub.Caption = r.FormValue("caption")

		file, header, ferr := r.FormFile("file")
		if ferr == nil {
			defer file.Close()
			if header.Size > h.maxUploadBytes {
				h.writeTooLarge(w)
				return
			}
			sub.Body = file
			sub.Size = header.Size
			sub.Filename = header.Filename
			sub.ContentType = contentTypeOf(header)
		}
	}

	res, err := h.admission.Submit(r.Context(), sub)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, uploadResponse{Photo: res.Photo, User: res.User})
}

// HandleList returns every admitted photo.
//
// HTTP: GET /api/photos
func (h *PhotoHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	photos, err := h.admission.ListPhotos(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, photoListResponse{Photos: photos})
}

// HandleContent streams a photo's bytes from the content store.
//
// HTTP: GET /api/photos/content/{ref}
//
// Walls never talk to the content store themselves; every image tag on a
// wall points here. References are immutable, so the response is cacheable
// forever.
func (h *PhotoHandler) HandleContent(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")

	content, err := h.admission.ResolveContent(r.Context(), ref)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	defer content.Body.Close()

	w.Header().Set("Content-Type", content.ContentType)
	if content.Size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(content.Size, 10))
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, content.Body); err != nil {
		// Status is already sent; the client sees a truncated body.
		h.logger.Warn("content stream interrupted",
			slog.String("contentRef", ref),
			slog.String("error", err.Error()),
		)
	}
}

func (h *PhotoHandler) writeTooLarge(w http.ResponseWriter) {
	writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
		Error:   apperror.KindValidation,
		Message: fmt.Sprintf("File exceeds the %d MB limit", h.maxUploadBytes>>20),
		Field:   "file",
	})
}

func isTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge)
}

func contentTypeOf(header *multipart.FileHeader) string {
	if ct := header.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
