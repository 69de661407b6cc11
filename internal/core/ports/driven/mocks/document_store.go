package mocks

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
)

var _ driven.DocumentStore = (*MockDocumentStore)(nil)

// MockDocumentStore is a mock implementation of DocumentStore for testing.
// Documents are copied on the way in and out, like a real database row.
type MockDocumentStore struct {
	mu        sync.RWMutex
	documents map[string]*domain.Document

	// Custom behavior hooks (optional)
	CreateFn func(doc *domain.Document) error
	FinishFn func(doc *domain.Document) error
}

// NewMockDocumentStore creates a new MockDocumentStore
func NewMockDocumentStore() *MockDocumentStore {
	return &MockDocumentStore{
		documents: make(map[string]*domain.Document),
	}
}

func (m *MockDocumentStore) Create(ctx context.Context, doc *domain.Document) error {
	if m.CreateFn != nil {
		if err := m.CreateFn(doc); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[doc.ID]; ok {
		return domain.ErrAlreadyExists
	}
	m.documents[doc.ID] = cloneDocument(doc)
	return nil
}

func (m *MockDocumentStore) Get(ctx context.Context, id string) (*domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneDocument(doc), nil
}

func (m *MockDocumentStore) SetStorageLocation(ctx context.Context, id, location, checksum string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[id]
	if !ok {
		return domain.ErrNotFound
	}
	doc.StorageLocation = location
	doc.Checksum = checksum
	doc.UpdatedAt = time.Now()
	return nil
}

func (m *MockDocumentStore) Finish(ctx context.Context, doc *domain.Document) error {
	if m.FinishFn != nil {
		if err := m.FinishFn(doc); err != nil {
			return err
		}
	}
	if !doc.Status.IsTerminal() {
		return domain.ErrInvalidTransition
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.documents[doc.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Status != domain.DocumentStatusProcessing {
		return domain.ErrInvalidTransition
	}
	stored.Status = doc.Status
	stored.ErrorMessage = doc.ErrorMessage
	stored.Metadata = doc.Metadata
	stored.UpdatedAt = time.Now()
	return nil
}

func (m *MockDocumentStore) ListByConversation(ctx context.Context, conversationID string) ([]*domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Document
	for _, doc := range m.documents {
		if doc.ConversationID == conversationID {
			result = append(result, cloneDocument(doc))
		}
	}
	slices.SortFunc(result, func(a, b *domain.Document) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return result, nil
}

func (m *MockDocumentStore) CompletedIDs(ctx context.Context, conversationID string) ([]string, error) {
	docs, _ := m.ListByConversation(ctx, conversationID)
	ids := []string{}
	for _, doc := range docs {
		if doc.Status == domain.DocumentStatusCompleted {
			ids = append(ids, doc.ID)
		}
	}
	return ids, nil
}

func (m *MockDocumentStore) ListByStatus(ctx context.Context, status domain.DocumentStatus, limit int) ([]*domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Document
	for _, doc := range m.documents {
		if doc.Status == status {
			result = append(result, cloneDocument(doc))
		}
	}
	slices.SortFunc(result, func(a, b *domain.Document) int {
		return a.UpdatedAt.Compare(b.UpdatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockDocumentStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.documents, id)
	return nil
}

// DeleteByConversation mirrors the foreign-key cascade of the real schema.
func (m *MockDocumentStore) DeleteByConversation(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, doc := range m.documents {
		if doc.ConversationID == conversationID {
			delete(m.documents, id)
		}
	}
}

// Len returns the number of stored documents (for test assertions).
func (m *MockDocumentStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.documents)
}

func cloneDocument(doc *domain.Document) *domain.Document {
	c := *doc
	if doc.Metadata != nil {
		md := *doc.Metadata
		c.Metadata = &md
	}
	return &c
}
