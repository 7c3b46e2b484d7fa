package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"pdm-go/internal/pdm"
)

// MemoryStore is an in-memory blob store for testing. Safe for concurrent
// use.
type MemoryStore struct {
	name    string
	mu      sync.RWMutex
	content map[string][]byte
}

var _ pdm.BlobStore = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory blob store with the given name.
func NewMemoryStore(name string) *MemoryStore {
	return &MemoryStore{name: name, content: make(map[string][]byte)}
}

// Put stores content under its checksum.
func (m *MemoryStore) Put(_ context.Context, checksum string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.content[checksum] = data
	return nil
}

// Get retrieves content by checksum.
func (m *MemoryStore) Get(_ context.Context, checksum string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.content[checksum]
	if !ok {
		return &pdm.NotFoundError{What: "content", Name: checksum}
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}
	return nil
}

// Exists reports whether content for checksum is stored.
func (m *MemoryStore) Exists(_ context.Context, checksum string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.content[checksum]
	return ok, nil
}

// ValidateSetup always succeeds for the in-memory store.
func (m *MemoryStore) ValidateSetup(_ context.Context) error { return nil }

// Len returns the number of stored blobs. Test helper.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.content)
}
