package driving

import (
	"context"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
)

// CreateConversationRequest holds the fields accepted when opening a conversation
type CreateConversationRequest struct {
	Title    string            `json:"title"`
	Mode     string            `json:"conversation_mode"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ConversationPage is one page of a user's conversations
type ConversationPage struct {
	Conversations []*domain.Conversation `json:"conversations"`
	Total         int                    `json:"total"`
	Page          int                    `json:"page"`
	PageSize      int                    `json:"page_size"`
}

// MessagePage is one page of a conversation transcript, oldest first
type MessagePage struct {
	Messages []*domain.Message `json:"messages"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

// ConversationService manages conversations and their transcripts.
// Every operation is scoped to the calling user.
type ConversationService interface {
	// Create opens a new conversation; an empty mode defaults to OPEN_CHAT
	Create(ctx context.Context, userID string, req CreateConversationRequest) (*domain.Conversation, error)

	// Get retrieves a conversation owned by userID
	Get(ctx context.Context, userID, id string) (*domain.Conversation, error)

	// List retrieves a page of the user's conversations, most recently updated first
	List(ctx context.Context, userID string, page, pageSize int) (*ConversationPage, error)

	// Messages retrieves a page of the transcript. Page 1 holds the newest messages.
	Messages(ctx context.Context, userID, id string, page, pageSize int) (*MessagePage, error)

	// Delete removes the conversation, its messages, documents, stored files and index entries
	Delete(ctx context.Context, userID, id string) error
}
