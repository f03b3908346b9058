package contentstore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/photo-wall/internal/apperror"
)

// fakeS3 serves path-style PutObject/GetObject for a single bucket.
type fakeS3 struct {
	mu      sync.Mutex
	bucket  string
	objects map[string]fakeObject
}

type fakeObject struct {
	data        []byte
	contentType string
	caption     string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key, ok := strings.CutPrefix(r.URL.Path, "/"+f.bucket+"/")
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		f.objects[key] = fakeObject{
			data:        data,
			contentType: r.Header.Get("Content-Type"),
			caption:     r.Header.Get("X-Amz-Meta-Caption"),
		}
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		o, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		w.Header().Set("Content-Type", o.contentType)
		w.Write(o.data)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newS3Test(t *testing.T) (*S3Store, *fakeS3) {
	t.Helper()
	fake := &fakeS3{bucket: "wall-photos", objects: map[string]fakeObject{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	store, err := NewS3Store(context.Background(), S3Config{
		Bucket:          "wall-photos",
		Prefix:          "photos/",
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		AccessKeyID:     "test-access",
		SecretAccessKey: "test-secret",
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	return store, fake
}

func TestS3Store_PutAndResolve(t *testing.T) {
	store, fake := newS3Test(t)
	ctx := context.Background()

	ref, err := store.Put(ctx, Object{
		Body:        strings.NewReader("png-bytes"),
		ContentType: "image/png",
		Caption:     "sunset",
	})
	require.NoError(t, err)
	require.NotEmpty(t, ref)

	fake.mu.Lock()
	stored, ok := fake.objects["photos/"+ref]
	fake.mu.Unlock()
	require.True(t, ok, "object not stored under prefix")
	assert.Equal(t, "sunset", stored.caption)

	c, err := store.Resolve(ctx, ref)
	require.NoError(t, err)
	defer c.Body.Close()

	data, err := io.ReadAll(c.Body)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
	assert.Equal(t, "image/png", c.ContentType)
}

func TestS3Store_ResolveMissingKey(t *testing.T) {
	store, _ := newS3Test(t)

	_, err := store.Resolve(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "error = %v", err)
}
