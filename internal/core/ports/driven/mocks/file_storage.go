package mocks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"sync"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
)

var _ driven.FileStorage = (*MockFileStorage)(nil)

// MockFileStorage keeps uploads in memory.
type MockFileStorage struct {
	mu    sync.RWMutex
	files map[string][]byte

	// Custom behavior hooks (optional)
	SaveFn func(documentID, filename string) error
	ReadFn func(location string) error
}

// NewMockFileStorage creates a new MockFileStorage
func NewMockFileStorage() *MockFileStorage {
	return &MockFileStorage{
		files: make(map[string][]byte),
	}
}

func (m *MockFileStorage) Save(ctx context.Context, documentID, filename string, content []byte) (*driven.StoredFile, error) {
	if m.SaveFn != nil {
		if err := m.SaveFn(documentID, filename); err != nil {
			return nil, err
		}
	}
	location := documentID + "_" + filename
	m.mu.Lock()
	m.files[location] = slices.Clone(content)
	m.mu.Unlock()
	return &driven.StoredFile{
		Location: location,
		Checksum: checksum(content),
		Size:     int64(len(content)),
	}, nil
}

func (m *MockFileStorage) Read(ctx context.Context, location, sum string) ([]byte, error) {
	if m.ReadFn != nil {
		if err := m.ReadFn(location); err != nil {
			return nil, err
		}
	}
	m.mu.RLock()
	content, ok := m.files[location]
	m.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	if sum != "" && checksum(content) != sum {
		return nil, fmt.Errorf("%w: checksum mismatch for %s", domain.ErrStorage, location)
	}
	return slices.Clone(content), nil
}

func (m *MockFileStorage) Delete(ctx context.Context, location string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, location)
	return nil
}

func (m *MockFileStorage) Close() error {
	return nil
}

// Has reports whether location is stored (for test assertions).
func (m *MockFileStorage) Has(location string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[location]
	return ok
}

func checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
