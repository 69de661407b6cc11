package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DocumentStore = (*DocumentStore)(nil)

const documentColumns = `id, conversation_id, user_id, name, size, content_type, status,
	storage_location, checksum, error_message, metadata, created_at, updated_at`

// DocumentStore implements driven.DocumentStore using PostgreSQL
type DocumentStore struct {
	db *DB
}

// NewDocumentStore creates a new DocumentStore
func NewDocumentStore(db *DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// Create inserts a new document
func (s *DocumentStore) Create(ctx context.Context, doc *domain.Document) error {
	metadata, err := marshalNullable(doc.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		doc.ID,
		doc.ConversationID,
		doc.UserID,
		doc.Name,
		doc.Size,
		doc.ContentType,
		doc.Status,
		NullString(doc.StorageLocation),
		NullString(doc.Checksum),
		NullString(doc.ErrorMessage),
		metadata,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23503" {
		return fmt.Errorf("%w: conversation %s", domain.ErrNotFound, doc.ConversationID)
	}
	return err
}

// Get retrieves a document by ID
func (s *DocumentStore) Get(ctx context.Context, id string) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return doc, err
}

// SetStorageLocation records where the uploaded bytes were stored
func (s *DocumentStore) SetStorageLocation(ctx context.Context, id, location, checksum string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE documents SET storage_location = $1, checksum = $2, updated_at = NOW()
		WHERE id = $3`,
		location, NullString(checksum), id)
	if err != nil {
		return err
	}
	return expectRow(result)
}

// Finish moves a PROCESSING document to its terminal state. The status guard
// in the WHERE clause makes terminal states final even under duplicate delivery.
func (s *DocumentStore) Finish(ctx context.Context, doc *domain.Document) error {
	if !doc.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is not terminal", domain.ErrInvalidTransition, doc.Status)
	}
	metadata, err := marshalNullable(doc.Metadata)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET status = $1, error_message = $2, metadata = $3, updated_at = $4
		WHERE id = $5 AND status = $6`,
		doc.Status,
		NullString(doc.ErrorMessage),
		metadata,
		doc.UpdatedAt,
		doc.ID,
		domain.DocumentStatusProcessing,
	)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	current, err := s.Get(ctx, doc.ID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.Status, doc.Status)
}

// ListByConversation retrieves all documents of a conversation, newest first
func (s *DocumentStore) ListByConversation(ctx context.Context, conversationID string) ([]*domain.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE conversation_id = $1
		ORDER BY created_at DESC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// CompletedIDs returns the IDs of COMPLETED documents in a conversation
func (s *DocumentStore) CompletedIDs(ctx context.Context, conversationID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM documents
		WHERE conversation_id = $1 AND status = $2
		ORDER BY created_at`, conversationID, domain.DocumentStatusCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListByStatus retrieves documents in the given status, oldest first
func (s *DocumentStore) ListByStatus(ctx context.Context, status domain.DocumentStatus, limit int) ([]*domain.Document, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE status = $1
		ORDER BY updated_at
		LIMIT $2`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// Delete deletes a document
func (s *DocumentStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectRow(result)
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var location, checksum, errMsg sql.NullString
	var metadata []byte

	err := row.Scan(
		&doc.ID,
		&doc.ConversationID,
		&doc.UserID,
		&doc.Name,
		&doc.Size,
		&doc.ContentType,
		&doc.Status,
		&location,
		&checksum,
		&errMsg,
		&metadata,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.StorageLocation = location.String
	doc.Checksum = checksum.String
	doc.ErrorMessage = errMsg.String
	if len(metadata) > 0 {
		doc.Metadata = &domain.DocumentMetadata{}
		if err := json.Unmarshal(metadata, doc.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal document metadata: %w", err)
		}
	}
	return &doc, nil
}

func scanDocuments(rows *sql.Rows) ([]*domain.Document, error) {
	docs := []*domain.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// marshalNullable encodes v as a JSON parameter. A nil pointer becomes an
// untyped nil so the driver sends NULL; an empty []byte would reach JSONB as ''.
func marshalNullable[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return string(b), nil
}

func expectRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
