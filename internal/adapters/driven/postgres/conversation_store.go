package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ConversationStore = (*ConversationStore)(nil)

const conversationColumns = `id, user_id, title, conversation_mode, summary, metadata, created_at, updated_at`

// ConversationStore implements driven.ConversationStore using PostgreSQL
type ConversationStore struct {
	db *DB
}

// NewConversationStore creates a new ConversationStore
func NewConversationStore(db *DB) *ConversationStore {
	return &ConversationStore{db: db}
}

// Create inserts a new conversation
func (s *ConversationStore) Create(ctx context.Context, conv *domain.Conversation) error {
	metadata, err := json.Marshal(conv.Metadata)
	if err != nil {
		return err
	}
	if conv.Metadata == nil {
		metadata = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (`+conversationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		conv.ID,
		conv.UserID,
		conv.Title,
		conv.Mode,
		conv.Summary,
		metadata,
		conv.CreatedAt,
		conv.UpdatedAt,
	)
	return err
}

// Get retrieves a conversation by ID
func (s *ConversationStore) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return conv, err
}

// ListByUser retrieves a user's conversations, most recently updated first
func (s *ConversationStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	convs := []*domain.Conversation{}
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// CountByUser returns how many conversations a user owns
func (s *ConversationStore) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations WHERE user_id = $1`, userID).Scan(&n)
	return n, err
}

// UpdateSummary replaces the rolling summary used as chat memory
func (s *ConversationStore) UpdateSummary(ctx context.Context, id, summary string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET summary = $1, updated_at = NOW() WHERE id = $2`, summary, id)
	if err != nil {
		return err
	}
	return expectRow(result)
}

// Delete removes a conversation. Messages and documents cascade.
func (s *ConversationStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectRow(result)
}

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	var conv domain.Conversation
	var metadata []byte

	err := row.Scan(
		&conv.ID,
		&conv.UserID,
		&conv.Title,
		&conv.Mode,
		&conv.Summary,
		&metadata,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &conv.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal conversation metadata: %w", err)
		}
	}
	return &conv, nil
}
