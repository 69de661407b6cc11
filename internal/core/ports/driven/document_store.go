package driven

import (
	"context"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
)

// DocumentStore handles document persistence (PostgreSQL)
type DocumentStore interface {
	// Create inserts a new document
	Create(ctx context.Context, doc *domain.Document) error

	// Get retrieves a document by ID
	Get(ctx context.Context, id string) (*domain.Document, error)

	// SetStorageLocation records where the uploaded bytes were stored
	SetStorageLocation(ctx context.Context, id, location, checksum string) error

	// Finish moves a PROCESSING document to its terminal state.
	// The document must carry its new status, metadata and error message.
	// Returns domain.ErrInvalidTransition if the stored row is no longer PROCESSING.
	Finish(ctx context.Context, doc *domain.Document) error

	// ListByConversation retrieves all documents of a conversation, newest first
	ListByConversation(ctx context.Context, conversationID string) ([]*domain.Document, error)

	// CompletedIDs returns the IDs of COMPLETED documents in a conversation
	CompletedIDs(ctx context.Context, conversationID string) ([]string, error)

	// ListByStatus retrieves documents in the given status
	ListByStatus(ctx context.Context, status domain.DocumentStatus, limit int) ([]*domain.Document, error)

	// Delete deletes a document
	Delete(ctx context.Context, id string) error
}
