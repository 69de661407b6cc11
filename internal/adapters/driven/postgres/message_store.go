package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.MessageStore = (*MessageStore)(nil)

const messageColumns = `id, conversation_id, role, content, sequence_number, tokens_used, metadata, created_at`

// MessageStore implements driven.MessageStore using PostgreSQL
type MessageStore struct {
	db *DB
}

// NewMessageStore creates a new MessageStore
func NewMessageStore(db *DB) *MessageStore {
	return &MessageStore{db: db}
}

// Append assigns max(sequence)+1 and inserts the message in one transaction.
// Locking the parent conversation row serialises appends per conversation
// while leaving other conversations unblocked.
func (s *MessageStore) Append(ctx context.Context, msg *domain.Message) error {
	metadata, err := marshalNullable(msg.Metadata)
	if err != nil {
		return err
	}

	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		var locked string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM conversations WHERE id = $1 FOR UPDATE`, msg.ConversationID).Scan(&locked)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock conversation: %w", err)
		}

		var next int
		err = tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(sequence_number), 0) + 1 FROM messages
			WHERE conversation_id = $1`, msg.ConversationID).Scan(&next)
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO messages (`+messageColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			msg.ID,
			msg.ConversationID,
			msg.Role,
			msg.Content,
			next,
			NullInt(msg.TokensUsed),
			metadata,
			msg.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE conversations SET updated_at = NOW() WHERE id = $1`, msg.ConversationID); err != nil {
			return fmt.Errorf("touch conversation: %w", err)
		}

		msg.SequenceNumber = next
		return nil
	})
}

// List retrieves a page counted from the newest message, returned in ascending order
func (s *MessageStore) List(ctx context.Context, conversationID string, limit, offset int) ([]*domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = $1
		ORDER BY sequence_number DESC
		LIMIT $2 OFFSET $3`, conversationID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}

// Recent retrieves the last n messages in ascending sequence order
func (s *MessageStore) Recent(ctx context.Context, conversationID string, n int) ([]*domain.Message, error) {
	if n <= 0 {
		return []*domain.Message{}, nil
	}
	return s.List(ctx, conversationID, n, 0)
}

// Count returns the number of messages in a conversation
func (s *MessageStore) Count(ctx context.Context, conversationID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = $1`, conversationID).Scan(&n)
	return n, err
}

// MaxSequence returns the highest sequence number, or 0 for an empty conversation
func (s *MessageStore) MaxSequence(ctx context.Context, conversationID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) FROM messages WHERE conversation_id = $1`,
		conversationID).Scan(&n)
	return n, err
}

func scanMessages(rows *sql.Rows) ([]*domain.Message, error) {
	msgs := []*domain.Message{}
	for rows.Next() {
		var msg domain.Message
		var tokens sql.NullInt64
		var metadata []byte

		err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.Role,
			&msg.Content,
			&msg.SequenceNumber,
			&tokens,
			&metadata,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		msg.TokensUsed = IntPtr(tokens)
		if len(metadata) > 0 {
			msg.Metadata = &domain.MessageMetadata{}
			if err := json.Unmarshal(metadata, msg.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal message metadata: %w", err)
			}
		}
		msgs = append(msgs, &msg)
	}
	return msgs, rows.Err()
}
