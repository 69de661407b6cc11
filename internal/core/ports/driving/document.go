package driving

import (
	"context"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
)

// Upload is one file received for a conversation
type Upload struct {
	Name        string
	ContentType string
	Content     []byte
}

// DocumentService accepts uploads and exposes their ingestion status
type DocumentService interface {
	// Upload stores each file, records it as PROCESSING and queues its ingestion.
	// It returns without waiting for ingestion.
	Upload(ctx context.Context, userID, conversationID string, files []Upload) ([]*domain.Document, error)

	// Get retrieves a document owned by userID
	Get(ctx context.Context, userID, id string) (*domain.Document, error)

	// ListByConversation retrieves the documents of a conversation, newest first
	ListByConversation(ctx context.Context, userID, conversationID string) ([]*domain.Document, error)

	// Delete removes the document, its stored file and its index entries
	Delete(ctx context.Context, userID, id string) error
}

// IngestionService turns a stored upload into index entries
type IngestionService interface {
	// Ingest drives one PROCESSING document to a terminal status
	Ingest(ctx context.Context, documentID string) (*domain.IngestResult, error)
}
