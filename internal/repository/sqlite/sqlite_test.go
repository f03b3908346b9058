package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sakif/photo-wall/internal/apperror"
	"github.com/sakif/photo-wall/internal/model"
	"github.com/sakif/photo-wall/internal/testutil"
)

// TESTING WITH IN-MEMORY SQLITE:
// ":memory:" creates a fresh database that lives only for the test. Because
// the pool is capped at one connection, every query in a test sees the same
// in-memory database.
func newTestDB(t *testing.T, opts ...Option) *DB {
	t.Helper()
	db, err := New(":memory:", opts...)
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *DB, email string, quota int) *model.User {
	t.Helper()
	u, err := db.GetOrCreateByEmail(context.Background(), email, quota)
	if err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return u
}

// =========================================================================
// SCHEMA
// =========================================================================

func TestSchemaStatus_UpToDateAfterNew(t *testing.T) {
	db := newTestDB(t)

	status, err := db.SchemaStatus()
	if err != nil {
		t.Fatalf("SchemaStatus() error = %v", err)
	}
	if !status.UpToDate() {
		t.Errorf("status = %+v, want up to date", status)
	}
	if status.Latest != 1 {
		t.Errorf("Latest = %d, want 1", status.Latest)
	}
}

// =========================================================================
// USER TESTS
// =========================================================================

func TestGetOrCreateByEmail_CreatesWithDefaults(t *testing.T) {
	db := newTestDB(t)

	u := createTestUser(t, db, "ada@example.com", 5)

	if u.ID == "" {
		t.Error("ID was not set")
	}
	if u.Role != model.RoleUser {
		t.Errorf("Role = %q, want %q", u.Role, model.RoleUser)
	}
	if !u.Active {
		t.Error("new user should be active")
	}
	if u.Quota != 5 || u.PhotoCount != 0 {
		t.Errorf("ledger = (%d, %d), want (5, 0)", u.Quota, u.PhotoCount)
	}
}

func TestGetOrCreateByEmail_ReturnsExisting(t *testing.T) {
	db := newTestDB(t)

	first := createTestUser(t, db, "ada@example.com", 5)
	second := createTestUser(t, db, "ada@example.com", 99)

	if first.ID != second.ID {
		t.Errorf("second call created a new user: %q != %q", second.ID, first.ID)
	}
	if second.Quota != 5 {
		t.Errorf("Quota = %d, existing user must keep its quota", second.Quota)
	}
}

func TestGetUserByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUserByID(context.Background(), "nonexistent-id")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByID() error = %v, want ErrNotFound", err)
	}
}

func TestSetUserActive(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "ada@example.com", 5)

	if err := db.SetUserActive(context.Background(), u.ID, false); err != nil {
		t.Fatalf("SetUserActive() error = %v", err)
	}
	got, err := db.GetUserByID(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if got.Active {
		t.Error("user still active after SetUserActive(false)")
	}

	if err := db.SetUserActive(context.Background(), "missing", true); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("SetUserActive(missing) error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// CREDENTIAL TESTS
// =========================================================================

func TestUpsertCredential_OverwritesInPlace(t *testing.T) {
	clk := testutil.FixedClock()
	db := newTestDB(t, WithClock(clk))
	ctx := context.Background()

	first := &model.Credential{
		Email:     "ada@example.com",
		CodeHash:  "hash-1",
		IssuedAt:  clk.Now(),
		ExpiresAt: clk.Now().Add(5 * time.Minute),
	}
	if err := db.UpsertCredential(ctx, first); err != nil {
		t.Fatalf("UpsertCredential() error = %v", err)
	}
	if ok, err := db.ConsumeCredential(ctx, first.Email, first.CodeHash); err != nil || !ok {
		t.Fatalf("ConsumeCredential() = %v, %v", ok, err)
	}

	clk.Advance(time.Minute)
	second := &model.Credential{
		Email:     "ada@example.com",
		CodeHash:  "hash-2",
		IssuedAt:  clk.Now(),
		ExpiresAt: clk.Now().Add(5 * time.Minute),
	}
	if err := db.UpsertCredential(ctx, second); err != nil {
		t.Fatalf("UpsertCredential() error = %v", err)
	}

	got, err := db.GetCredential(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("GetCredential() error = %v", err)
	}
	if got.CodeHash != "hash-2" {
		t.Errorf("CodeHash = %q, want hash-2", got.CodeHash)
	}
	if !got.ExpiresAt.Equal(second.ExpiresAt) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, second.ExpiresAt)
	}
	if got.ConsumedAt != nil {
		t.Error("re-issued credential must not be consumed")
	}

	var rows int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM credentials`).Scan(&rows); err != nil {
		t.Fatalf("count: %v", err)
	}
	if rows != 1 {
		t.Errorf("credential rows = %d, want 1", rows)
	}
}

func TestConsumeCredential_OnlyOnce(t *testing.T) {
	clk := testutil.FixedClock()
	db := newTestDB(t, WithClock(clk))
	ctx := context.Background()

	cred := &model.Credential{
		Email:     "ada@example.com",
		CodeHash:  "hash-1",
		IssuedAt:  clk.Now(),
		ExpiresAt: clk.Now().Add(5 * time.Minute),
	}
	if err := db.UpsertCredential(ctx, cred); err != nil {
		t.Fatalf("UpsertCredential() error = %v", err)
	}

	if ok, err := db.ConsumeCredential(ctx, cred.Email, "stale-hash"); err != nil || ok {
		t.Errorf("ConsumeCredential(stale) = %v, %v, want false", ok, err)
	}
	if ok, err := db.ConsumeCredential(ctx, cred.Email, cred.CodeHash); err != nil || !ok {
		t.Fatalf("first ConsumeCredential() = %v, %v, want true", ok, err)
	}
	if ok, err := db.ConsumeCredential(ctx, cred.Email, cred.CodeHash); err != nil || ok {
		t.Errorf("second ConsumeCredential() = %v, %v, want false", ok, err)
	}

	got, err := db.GetCredential(ctx, cred.Email)
	if err != nil {
		t.Fatalf("GetCredential() error = %v", err)
	}
	if got.ConsumedAt == nil {
		t.Error("ConsumedAt not set")
	}
}

func TestGetCredential_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetCredential(context.Background(), "nobody@example.com")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetCredential() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// PHOTO / QUOTA TESTS
// =========================================================================

func TestCreateChargedPhoto_ChargesLedger(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "ada@example.com", 2)

	photo := &model.Photo{UserID: u.ID, ContentRef: "ref-1", Caption: "hello"}
	owner, err := db.CreateChargedPhoto(ctx, photo)
	if err != nil {
		t.Fatalf("CreateChargedPhoto() error = %v", err)
	}

	if photo.ID == "" || photo.CreatedAt.IsZero() {
		t.Error("CreateChargedPhoto() did not set ID/CreatedAt")
	}
	if owner.Quota != 1 || owner.PhotoCount != 1 {
		t.Errorf("ledger = (%d, %d), want (1, 1)", owner.Quota, owner.PhotoCount)
	}
}

func TestCreateChargedPhoto_ZeroQuotaRecordsNothing(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "ada@example.com", 0)

	_, err := db.CreateChargedPhoto(ctx, &model.Photo{UserID: u.ID, ContentRef: "ref-1"})
	if !errors.Is(err, apperror.ErrQuotaExhausted) {
		t.Fatalf("error = %v, want ErrQuotaExhausted", err)
	}

	photos, err := db.ListPhotos(ctx)
	if err != nil {
		t.Fatalf("ListPhotos() error = %v", err)
	}
	if len(photos) != 0 {
		t.Errorf("photos = %d, refused charge must roll back the insert", len(photos))
	}

	got, _ := db.GetUserByID(ctx, u.ID)
	if got.Quota != 0 || got.PhotoCount != 0 {
		t.Errorf("ledger changed to (%d, %d)", got.Quota, got.PhotoCount)
	}
}

func TestCreateChargedPhoto_DuplicateContentRefFails(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "ada@example.com", 5)

	if _, err := db.CreateChargedPhoto(ctx, &model.Photo{UserID: u.ID, ContentRef: "same"}); err != nil {
		t.Fatalf("first insert error = %v", err)
	}
	_, err := db.CreateChargedPhoto(ctx, &model.Photo{UserID: u.ID, ContentRef: "same"})
	if err == nil {
		t.Fatal("duplicate content ref should fail")
	}
	if errors.Is(err, apperror.ErrQuotaExhausted) {
		t.Error("duplicate ref must not be reported as quota exhaustion")
	}

	got, _ := db.GetUserByID(ctx, u.ID)
	if got.Quota != 4 {
		t.Errorf("Quota = %d, failed insert must not charge", got.Quota)
	}
}

func TestCreateChargedPhoto_ConcurrentNeverNegative(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	const quota, attempts = 3, 10
	u := createTestUser(t, db, "ada@example.com", quota)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		exhausted int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := db.CreateChargedPhoto(ctx, &model.Photo{
				UserID:     u.ID,
				ContentRef: "ref-" + string(rune('a'+i)),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, apperror.ErrQuotaExhausted):
				exhausted++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if succeeded != quota || exhausted != attempts-quota {
		t.Errorf("succeeded=%d exhausted=%d, want %d/%d", succeeded, exhausted, quota, attempts-quota)
	}
	got, _ := db.GetUserByID(ctx, u.ID)
	if got.Quota != 0 || got.PhotoCount != quota {
		t.Errorf("ledger = (%d, %d), want (0, %d)", got.Quota, got.PhotoCount, quota)
	}
}

func TestListPhotos_MostRecentFirst(t *testing.T) {
	clk := testutil.FixedClock()
	db := newTestDB(t, WithClock(clk))
	ctx := context.Background()
	u := createTestUser(t, db, "ada@example.com", 5)

	for _, ref := range []string{"p1", "p2", "p3"} {
		if _, err := db.CreateChargedPhoto(ctx, &model.Photo{UserID: u.ID, ContentRef: ref}); err != nil {
			t.Fatalf("CreateChargedPhoto(%s) error = %v", ref, err)
		}
		clk.Advance(time.Second)
	}

	photos, err := db.ListPhotos(ctx)
	if err != nil {
		t.Fatalf("ListPhotos() error = %v", err)
	}
	var refs []string
	for _, p := range photos {
		refs = append(refs, p.ContentRef)
	}
	want := []string{"p3", "p2", "p1"}
	if len(refs) != len(want) {
		t.Fatalf("refs = %v, want %v", refs, want)
	}
	for i := range want {
		if refs[i] != want[i] {
			t.Errorf("refs = %v, want %v", refs, want)
			break
		}
	}
}

func TestGetPhotoByContentRef(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "ada@example.com", 5)

	if _, err := db.CreateChargedPhoto(ctx, &model.Photo{UserID: u.ID, ContentRef: "ref-x", Caption: "cap"}); err != nil {
		t.Fatalf("CreateChargedPhoto() error = %v", err)
	}

	p, err := db.GetPhotoByContentRef(ctx, "ref-x")
	if err != nil {
		t.Fatalf("GetPhotoByContentRef() error = %v", err)
	}
	if p.Caption != "cap" || p.UserID != u.ID {
		t.Errorf("photo = %+v", p)
	}

	if _, err := db.GetPhotoByContentRef(ctx, "missing"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}
