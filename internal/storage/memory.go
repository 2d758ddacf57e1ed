package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory ObjectStore for tests. It counts writes per key
// so idempotency tests can assert that a short-circuited run performed none.
type MemoryStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	putCount map[string]int
}

var _ ObjectStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects:  make(map[string][]byte),
		putCount: make(map[string]int),
	}
}

func objectKey(bucket, key string) string {
	return bucket + "/" + key
}

// Get returns a copy of the stored object body.
func (m *MemoryStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.objects[objectKey(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
	}
	out := make([]byte, len(body))
	copy(out, body)
	return out, nil
}

// Put stores a copy of body.
func (m *MemoryStore) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(body))
	copy(stored, body)
	m.objects[objectKey(bucket, key)] = stored
	m.putCount[objectKey(bucket, key)]++
	return nil
}

// PutCount returns how many times the key has been written.
func (m *MemoryStore) PutCount(bucket, key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putCount[objectKey(bucket, key)]
}

// TotalPuts returns the number of writes across all keys.
func (m *MemoryStore) TotalPuts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.putCount {
		n += c
	}
	return n
}

// Exists reports whether an object is present.
func (m *MemoryStore) Exists(bucket, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[objectKey(bucket, key)]
	return ok
}
