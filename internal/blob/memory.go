package blob

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"meetingflow/internal/services"
)

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryStore keeps objects in process memory. It backs tests and
// single-host development setups.
type MemoryStore struct {
	bucket string

	mu      sync.RWMutex
	objects map[string]memoryObject
	failPut func(key string) error
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store for bucket.
func NewMemoryStore(bucket string) *MemoryStore {
	if bucket == "" {
		bucket = "memory"
	}
	return &MemoryStore{bucket: bucket, objects: make(map[string]memoryObject)}
}

// FailPuts makes Put return the error fn reports for a key. A nil fn clears
// the hook.
func (m *MemoryStore) FailPuts(fn func(key string) error) {
	m.mu.Lock()
	m.failPut = fn
	m.mu.Unlock()
}

func (m *MemoryStore) Put(ctx context.Context, key, contentType string, data []byte) (Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return Descriptor{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut != nil {
		if err := m.failPut(key); err != nil {
			return Descriptor{}, err
		}
	}
	copied := append([]byte(nil), data...)
	m.objects[key] = memoryObject{data: copied, contentType: contentType}
	return m.descriptor(key, contentType, len(copied)), nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, Descriptor{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, Descriptor{}, services.Wrap(services.ErrNotFound, "blob", "get", key, nil)
	}
	return append([]byte(nil), obj.data...), m.descriptor(key, obj.contentType, len(obj.data)), nil
}

func (m *MemoryStore) List(ctx context.Context, prefix string) ([]Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Descriptor
	for key, obj := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, m.descriptor(key, obj.contentType, len(obj.data)))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryStore) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.RLock()
	_, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return "", services.Wrap(services.ErrNotFound, "blob", "presign", key, nil)
	}
	expires := time.Now().Add(ttl).Unix()
	return fmt.Sprintf("memory://%s/%s?expires=%d", m.bucket, url.PathEscape(key), expires), nil
}

// Len reports how many objects are stored.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

func (m *MemoryStore) descriptor(key, contentType string, size int) Descriptor {
	return Descriptor{Bucket: m.bucket, Key: key, ContentType: contentType, Size: int64(size)}
}
