package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/sakif/photo-wall/internal/apperror"
	"github.com/sakif/photo-wall/internal/broadcast"
	"github.com/sakif/photo-wall/internal/contentstore"
	"github.com/sakif/photo-wall/internal/mailer"
	"github.com/sakif/photo-wall/internal/model"
	"github.com/sakif/photo-wall/internal/repository"
)

// =========================================================================
// MOCK RECORD STORE
// =========================================================================
//
// mockRepo implements all three repository interfaces over maps, the same
// way sqlite.DB does over tables. It is guarded by a mutex because the
// quota tests submit concurrently. Getters return copies so a test cannot
// change stored state by editing a returned value.

type mockRepo struct {
	mu      sync.Mutex
	users   map[string]*model.User // by ID
	emails  map[string]string      // email → ID
	creds   map[string]*model.Credential
	photos  []model.Photo // insertion order, oldest first
	nextID  int
	seq     int
	photoFn func() error // when set, CreateChargedPhoto fails with its error
}

var (
	_ repository.UserRepository       = (*mockRepo)(nil)
	_ repository.CredentialRepository = (*mockRepo)(nil)
	_ repository.PhotoRepository      = (*mockRepo)(nil)
)

func newMockRepo() *mockRepo {
	return &mockRepo{
		users:  make(map[string]*model.User),
		emails: make(map[string]string),
		creds:  make(map[string]*model.Credential),
	}
}

func (m *mockRepo) GetOrCreateByEmail(_ context.Context, email string, defaultQuota int) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.emails[email]; ok {
		u := *m.users[id]
		return &u, nil
	}
	m.nextID++
	u := &model.User{
		ID:     fmt.Sprintf("user-%d", m.nextID),
		Email:  email,
		Role:   model.RoleUser,
		Active: true,
		Quota:  defaultQuota,
	}
	m.users[u.ID] = u
	m.emails[email] = u.ID
	result := *u
	return &result, nil
}

func (m *mockRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	result := *u
	return &result, nil
}

func (m *mockRepo) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.emails[email]
	if !ok {
		return nil, apperror.NotFound("user", email)
	}
	result := *m.users[id]
	return &result, nil
}

func (m *mockRepo) UpsertCredential(_ context.Context, cred *model.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *cred
	stored.ConsumedAt = nil
	m.creds[cred.Email] = &stored
	return nil
}

func (m *mockRepo) GetCredential(_ context.Context, email string) (*model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.creds[email]
	if !ok {
		return nil, apperror.NotFound("credential", email)
	}
	result := *c
	return &result, nil
}

func (m *mockRepo) ConsumeCredential(_ context.Context, email, codeHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.creds[email]
	if !ok || c.CodeHash != codeHash || c.ConsumedAt != nil {
		return false, nil
	}
	now := c.IssuedAt
	c.ConsumedAt = &now
	return true, nil
}

func (m *mockRepo) CreateChargedPhoto(_ context.Context, photo *model.Photo) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.photoFn != nil {
		if err := m.photoFn(); err != nil {
			return nil, err
		}
	}
	u, ok := m.users[photo.UserID]
	if !ok {
		return nil, fmt.Errorf("mock: no user %s", photo.UserID)
	}
	if u.Quota <= 0 {
		return nil, apperror.QuotaExhausted()
	}
	for _, p := range m.photos {
		if p.ContentRef == photo.ContentRef {
			return nil, fmt.Errorf("mock: duplicate content ref %s", photo.ContentRef)
		}
	}

	m.seq++
	photo.ID = fmt.Sprintf("photo-%d", m.seq)
	m.photos = append(m.photos, *photo)
	u.Quota--
	u.PhotoCount++

	result := *u
	return &result, nil
}

func (m *mockRepo) ListPhotos(_ context.Context) ([]model.Photo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]model.Photo, len(m.photos))
	copy(result, m.photos)
	// Most recent first.
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result, nil
}

func (m *mockRepo) GetPhotoByContentRef(_ context.Context, ref string) (*model.Photo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.photos {
		if p.ContentRef == ref {
			result := p
			return &result, nil
		}
	}
	return nil, apperror.NotFound("photo", ref)
}

// addUser inserts an identity directly, bypassing GetOrCreateByEmail.
func (m *mockRepo) addUser(u model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = &u
	m.emails[u.Email] = u.ID
}

// addPhoto records a photo without charging anyone.
func (m *mockRepo) addPhoto(ref, caption string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.photos = append(m.photos, model.Photo{
		ID:         fmt.Sprintf("photo-%d", m.seq),
		ContentRef: ref,
		Caption:    caption,
	})
}

func (m *mockRepo) photoCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.photos)
}

// =========================================================================
// MOCK COLLABORATORS
// =========================================================================

type mockMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (m *mockMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mockMailer) last() (mailer.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return mailer.Message{}, false
	}
	return m.sent[len(m.sent)-1], true
}

// recordingPublisher remembers every event instead of fanning it out.
type recordingPublisher struct {
	mu     sync.Mutex
	events []broadcast.Event
}

func (p *recordingPublisher) Publish(e broadcast.Event) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return 1
}

func (p *recordingPublisher) published() []broadcast.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]broadcast.Event(nil), p.events...)
}

// failingStore fails every call with err.
type failingStore struct{ err error }

func (f failingStore) Put(context.Context, contentstore.Object) (string, error) {
	return "", f.err
}

func (f failingStore) Resolve(context.Context, string) (*contentstore.Content, error) {
	return nil, f.err
}

// blockingStore waits for its context to end, then reports why.
type blockingStore struct{}

func (blockingStore) Put(ctx context.Context, _ contentstore.Object) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (blockingStore) Resolve(ctx context.Context, _ string) (*contentstore.Content, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// =========================================================================
// LOGGERS
// =========================================================================

// newTestLogger discards everything below Error so test output stays quiet.
func newTestLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newCapturingLogger returns a logger that writes into buf, for tests that
// assert on what was logged.
func newCapturingLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(&syncWriter{buf: buf}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type syncWriter struct {
	mu  sync.Mutex
	buf *bytes.Buffer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}
