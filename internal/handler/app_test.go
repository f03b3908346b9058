package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/photo-wall/internal/auth"
	"github.com/sakif/photo-wall/internal/broadcast"
	"github.com/sakif/photo-wall/internal/contentstore"
	"github.com/sakif/photo-wall/internal/emailcheck"
	"github.com/sakif/photo-wall/internal/handler"
	"github.com/sakif/photo-wall/internal/mailer"
	sqliteRepo "github.com/sakif/photo-wall/internal/repository/sqlite"
	"github.com/sakif/photo-wall/internal/service"
	"github.com/sakif/photo-wall/internal/wall"
)

// testApp is the full handler stack over in-memory collaborators: SQLite
// ":memory:", the memory content store and a mailer that keeps messages.
type testApp struct {
	router http.Handler
	db     *sqliteRepo.DB
	hub    *broadcast.Hub
	tokens *auth.TokenService
	mail   *captureMailer
}

type captureMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (m *captureMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

var codePattern = regexp.MustCompile(`\d{6}`)

// lastCode pulls the six-digit code out of the most recent email.
func (m *captureMailer) lastCode(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no mail sent")
	code := codePattern.FindString(m.sent[len(m.sent)-1].Body)
	require.NotEmpty(t, code, "no code in mail body")
	return code
}

const testQuota = 2

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	require.NoError(t, err)

	hub := broadcast.NewHub(16, logger)
	t.Cleanup(hub.Close)

	mail := &captureMailer{}
	creds := service.NewCredentialService(service.CredentialDeps{
		Users:        db,
		Credentials:  db,
		Emails:       emailcheck.New(emailcheck.WithDeepValidation(false)),
		Mail:         mail,
		Hasher:       auth.NewCodeHasherForTest(bcrypt.MinCost),
		Tokens:       tokens,
		DefaultQuota: testQuota,
	}, logger)
	admission := service.NewAdmissionService(db, db, contentstore.NewMemoryStore(), hub, time.Second, logger)
	feed := service.NewWallFeed(hub, db, wall.Config{CellWidth: 100, CellHeight: 100, CapacityFraction: 0.8}, logger)

	authHandler := handler.NewAuthHandler(creds, logger)
	photoHandler := handler.NewPhotoHandler(admission, 1<<20, logger)
	wallHandler := handler.NewWallHandler(feed, 50*time.Millisecond, wall.Viewport{Width: 500, Height: 200}, logger)

	r := chi.NewRouter()
	r.Get("/health", handler.HandleHealth)
	r.Get("/ws/wall", wallHandler.HandleWall)
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth", authHandler.HandleRequestCode)
		r.Post("/verify", authHandler.HandleVerify)
		r.Get("/photos", photoHandler.HandleList)
		r.Get("/photos/content/{ref}", photoHandler.HandleContent)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(auth.NewGuard(tokens)))
			r.Get("/user", authHandler.HandleMe)
			r.Post("/upload", photoHandler.HandleUpload)
		})
	})

	return &testApp{router: r, db: db, hub: hub, tokens: tokens, mail: mail}
}

// login creates (or finds) the identity for email and returns a bearer token.
func (a *testApp) login(t *testing.T, email string) string {
	t.Helper()
	u, err := a.db.GetOrCreateByEmail(context.Background(), email, testQuota)
	require.NoError(t, err)
	token, err := a.tokens.Generate(auth.Principal{UserID: u.ID, Role: u.Role})
	require.NoError(t, err)
	return token
}

func (a *testApp) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// uploadRequest builds a multipart upload. A nil payload leaves the file
// field out entirely.
func uploadRequest(t *testing.T, token string, payload []byte, caption string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if caption != "" {
		require.NoError(t, mw.WriteField("caption", caption))
	}
	if payload != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="shot.jpg"`)
		h.Set("Content-Type", "image/jpeg")
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(payload)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), "body: %s", rr.Body.String())
	return v
}
