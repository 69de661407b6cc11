package domain

import (
	"fmt"
	"time"
)

// DocumentStatus tracks an uploaded document through ingestion.
type DocumentStatus string

const (
	DocumentStatusProcessing DocumentStatus = "PROCESSING"
	DocumentStatusCompleted  DocumentStatus = "COMPLETED"
	DocumentStatusFailed     DocumentStatus = "FAILED"
)

// IsTerminal reports whether no further transition is allowed.
func (s DocumentStatus) IsTerminal() bool {
	return s == DocumentStatusCompleted || s == DocumentStatusFailed
}

// IsValid reports whether s is a known status.
func (s DocumentStatus) IsValid() bool {
	switch s {
	case DocumentStatusProcessing, DocumentStatusCompleted, DocumentStatusFailed:
		return true
	}
	return false
}

// Document is a file uploaded into a conversation.
type Document struct {
	ID              string            `json:"id"`
	ConversationID  string            `json:"conversation_id"`
	UserID          string            `json:"user_id"`
	Name            string            `json:"name"`
	Size            int64             `json:"size"`
	ContentType     string            `json:"content_type"`
	Status          DocumentStatus    `json:"status"`
	StorageLocation string            `json:"-"`
	Checksum        string            `json:"checksum,omitempty"`
	ErrorMessage    string            `json:"error_message,omitempty"`
	Metadata        *DocumentMetadata `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// DocumentMetadata holds what ingestion learned about a document.
type DocumentMetadata struct {
	ChunkCount     *int       `json:"chunks_count,omitempty"`
	EmbeddingModel string     `json:"embedding_model,omitempty"`
	IndexedAt      *time.Time `json:"indexed_at,omitempty"`
}

// NewDocument creates a document in PROCESSING state.
func NewDocument(conversationID, userID, name, contentType string, size int64) *Document {
	now := time.Now()
	return &Document{
		ID:             GenerateID(),
		ConversationID: conversationID,
		UserID:         userID,
		Name:           name,
		Size:           size,
		ContentType:    contentType,
		Status:         DocumentStatusProcessing,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Transition moves the document to a terminal status.
// Only PROCESSING -> COMPLETED and PROCESSING -> FAILED are allowed.
func (d *Document) Transition(to DocumentStatus) error {
	if d.Status != DocumentStatusProcessing || !to.IsTerminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.Status, to)
	}
	d.Status = to
	d.UpdatedAt = time.Now()
	return nil
}

// Complete marks the document COMPLETED with the number of indexed chunks.
func (d *Document) Complete(chunkCount int, embeddingModel string) error {
	if err := d.Transition(DocumentStatusCompleted); err != nil {
		return err
	}
	now := d.UpdatedAt
	d.ErrorMessage = ""
	d.Metadata = &DocumentMetadata{
		ChunkCount:     &chunkCount,
		EmbeddingModel: embeddingModel,
		IndexedAt:      &now,
	}
	return nil
}

// Fail marks the document FAILED with a readable reason.
func (d *Document) Fail(reason string) error {
	if err := d.Transition(DocumentStatusFailed); err != nil {
		return err
	}
	d.ErrorMessage = reason
	return nil
}

// ChunkCount returns the number of indexed chunks, or zero if unknown.
func (d *Document) ChunkCount() int {
	if d.Metadata == nil || d.Metadata.ChunkCount == nil {
		return 0
	}
	return *d.Metadata.ChunkCount
}

// Chunk is a contiguous span of extracted text. Never persisted on its own.
type Chunk struct {
	DocumentID string `json:"document_id"`
	Index      int    `json:"index"`
	Text       string `json:"text"`
	Start      int    `json:"start"` // rune offset into the extracted text
	End        int    `json:"end"`
}

// IngestResult summarises one ingestion run.
type IngestResult struct {
	DocumentID string         `json:"document_id"`
	Status     DocumentStatus `json:"status"`
	ChunkCount int            `json:"chunk_count"`
	Error      string         `json:"error,omitempty"`
	Duration   time.Duration  `json:"duration"`
}
