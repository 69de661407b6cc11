package driven

import (
	"context"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
)

// ConversationStore handles conversation persistence (PostgreSQL)
type ConversationStore interface {
	// Create inserts a new conversation
	Create(ctx context.Context, conv *domain.Conversation) error

	// Get retrieves a conversation by ID
	Get(ctx context.Context, id string) (*domain.Conversation, error)

	// ListByUser retrieves a user's conversations, most recently updated first
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Conversation, error)

	// CountByUser returns how many conversations a user owns
	CountByUser(ctx context.Context, userID string) (int, error)

	// UpdateSummary replaces the rolling summary used as chat memory
	UpdateSummary(ctx context.Context, id, summary string) error

	// Delete removes a conversation along with its messages and documents
	Delete(ctx context.Context, id string) error
}

// MessageStore handles message persistence (PostgreSQL)
type MessageStore interface {
	// Append assigns the next sequence number (current maximum + 1) and
	// inserts the message atomically. Concurrent appends to the same
	// conversation never receive the same number.
	Append(ctx context.Context, msg *domain.Message) error

	// List retrieves a page of messages ordered by ascending sequence number.
	// The page is taken from the newest end: page 1 holds the latest messages.
	List(ctx context.Context, conversationID string, limit, offset int) ([]*domain.Message, error)

	// Recent retrieves the last n messages in ascending sequence order
	Recent(ctx context.Context, conversationID string, n int) ([]*domain.Message, error)

	// Count returns the number of messages in a conversation
	Count(ctx context.Context, conversationID string) (int, error)

	// MaxSequence returns the highest sequence number, or 0 for an empty conversation
	MaxSequence(ctx context.Context, conversationID string) (int, error)
}
