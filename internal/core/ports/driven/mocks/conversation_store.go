package mocks

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
)

var (
	_ driven.ConversationStore = (*MockConversationStore)(nil)
	_ driven.MessageStore      = (*MockMessageStore)(nil)
)

// MockConversationStore is a mock implementation of ConversationStore for testing
type MockConversationStore struct {
	mu            sync.RWMutex
	conversations map[string]*domain.Conversation
}

// NewMockConversationStore creates a new MockConversationStore
func NewMockConversationStore() *MockConversationStore {
	return &MockConversationStore{
		conversations: make(map[string]*domain.Conversation),
	}
}

func (m *MockConversationStore) Create(ctx context.Context, conv *domain.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conversations[conv.ID]; ok {
		return domain.ErrAlreadyExists
	}
	m.conversations[conv.ID] = cloneConversation(conv)
	return nil
}

func (m *MockConversationStore) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conv, ok := m.conversations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneConversation(conv), nil
}

func (m *MockConversationStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Conversation
	for _, conv := range m.conversations {
		if conv.UserID == userID {
			result = append(result, cloneConversation(conv))
		}
	}
	slices.SortFunc(result, func(a, b *domain.Conversation) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return paginate(result, limit, offset), nil
}

func (m *MockConversationStore) CountByUser(ctx context.Context, userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, conv := range m.conversations {
		if conv.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *MockConversationStore) UpdateSummary(ctx context.Context, id, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[id]
	if !ok {
		return domain.ErrNotFound
	}
	conv.Summary = summary
	conv.UpdatedAt = time.Now()
	return nil
}

func (m *MockConversationStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conversations[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.conversations, id)
	return nil
}

// Touch bumps updated_at, as appending a message does in the real store.
func (m *MockConversationStore) Touch(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conv, ok := m.conversations[id]; ok {
		conv.UpdatedAt = time.Now()
	}
}

// MockMessageStore is a mock implementation of MessageStore for testing.
// Sequence numbers are assigned under the store mutex, so concurrent
// appends behave like the row-locked database version.
type MockMessageStore struct {
	mu       sync.RWMutex
	messages map[string][]*domain.Message

	// Conversations, when set, makes Append reject unknown conversations.
	Conversations *MockConversationStore

	// Custom behavior hooks (optional)
	AppendFn func(msg *domain.Message) error
}

// NewMockMessageStore creates a new MockMessageStore
func NewMockMessageStore(conversations *MockConversationStore) *MockMessageStore {
	return &MockMessageStore{
		messages:      make(map[string][]*domain.Message),
		Conversations: conversations,
	}
}

func (m *MockMessageStore) Append(ctx context.Context, msg *domain.Message) error {
	if m.AppendFn != nil {
		if err := m.AppendFn(msg); err != nil {
			return err
		}
	}
	if m.Conversations != nil {
		if _, err := m.Conversations.Get(ctx, msg.ConversationID); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.messages[msg.ConversationID]
	next := 1
	if len(existing) > 0 {
		next = existing[len(existing)-1].SequenceNumber + 1
	}
	msg.SequenceNumber = next
	c := *msg
	m.messages[msg.ConversationID] = append(existing, &c)

	if m.Conversations != nil {
		m.Conversations.Touch(msg.ConversationID)
	}
	return nil
}

func (m *MockMessageStore) List(ctx context.Context, conversationID string, limit, offset int) ([]*domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.messages[conversationID]

	// Pages are taken from the newest end.
	end := len(all) - max(offset, 0)
	if end <= 0 {
		return []*domain.Message{}, nil
	}
	start := 0
	if limit > 0 && end-limit > 0 {
		start = end - limit
	}
	result := make([]*domain.Message, 0, end-start)
	for _, msg := range all[start:end] {
		c := *msg
		result = append(result, &c)
	}
	return result, nil
}

func (m *MockMessageStore) Recent(ctx context.Context, conversationID string, n int) ([]*domain.Message, error) {
	if n <= 0 {
		return []*domain.Message{}, nil
	}
	return m.List(ctx, conversationID, n, 0)
}

func (m *MockMessageStore) Count(ctx context.Context, conversationID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages[conversationID]), nil
}

func (m *MockMessageStore) MaxSequence(ctx context.Context, conversationID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.messages[conversationID]
	if len(all) == 0 {
		return 0, nil
	}
	return all[len(all)-1].SequenceNumber, nil
}

// DeleteByConversation mirrors the foreign-key cascade of the real schema.
func (m *MockMessageStore) DeleteByConversation(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.messages, conversationID)
}

func cloneConversation(conv *domain.Conversation) *domain.Conversation {
	c := *conv
	c.Metadata = maps.Clone(conv.Metadata)
	return &c
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[max(offset, 0):]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
