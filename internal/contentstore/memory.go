package contentstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/sakif/photo-wall/internal/apperror"
	"github.com/sakif/photo-wall/internal/clock"
)

// MemoryStore keeps payloads in a map. It is the development default and
// the store most tests use. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	ids     clock.IDGenerator
	objects map[string]memoryObject
}

type memoryObject struct {
	data        []byte
	contentType string
	caption     string
}

// NewMemoryStore creates an empty MemoryStore that hands out xid references.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithIDs(clock.XIDGenerator{})
}

// NewMemoryStoreWithIDs creates a MemoryStore with deterministic references.
func NewMemoryStoreWithIDs(ids clock.IDGenerator) *MemoryStore {
	return &MemoryStore{ids: ids, objects: make(map[string]memoryObject)}
}

func (m *MemoryStore) Put(ctx context.Context, obj Object) (string, error) {
	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return "", fmt.Errorf("contentstore: reading payload: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ct := obj.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ref := m.ids.New()
	m.objects[ref] = memoryObject{data: data, contentType: ct, caption: obj.Caption}
	return ref, nil
}

func (m *MemoryStore) Resolve(ctx context.Context, ref string) (*Content, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.objects[ref]
	if !ok {
		return nil, apperror.NotFound("content", ref)
	}
	return &Content{
		Body:        io.NopCloser(bytes.NewReader(o.data)),
		ContentType: o.contentType,
		Size:        int64(len(o.data)),
	}, nil
}

// Caption returns the caption stored with ref. Test helper.
func (m *MemoryStore) Caption(ref string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[ref]
	return o.caption, ok
}

// Len reports how many objects are stored.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

var _ Store = (*MemoryStore)(nil)
