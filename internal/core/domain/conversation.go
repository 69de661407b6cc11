package domain

import (
	"strings"
	"time"
)

// ConversationMode selects how a chat turn is answered.
type ConversationMode string

const (
	ModeOpenChat        ConversationMode = "OPEN_CHAT"
	ModeDocumentQA      ConversationMode = "DOCUMENT_QA"
	ModeDocumentSummary ConversationMode = "DOCUMENT_SUMMARY"
)

// ParseConversationMode maps a label to a mode. Unknown labels are rejected.
func ParseConversationMode(s string) (ConversationMode, bool) {
	switch ConversationMode(strings.ToUpper(strings.TrimSpace(s))) {
	case ModeOpenChat:
		return ModeOpenChat, true
	case ModeDocumentQA:
		return ModeDocumentQA, true
	case ModeDocumentSummary:
		return ModeDocumentSummary, true
	}
	return "", false
}

// Conversation is a chat thread owned by one user.
type Conversation struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Title     string            `json:"title"`
	Mode      ConversationMode  `json:"conversation_mode"`
	Summary   string            `json:"summary,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// NewConversation creates a conversation, defaulting the mode to OPEN_CHAT.
func NewConversation(userID, title string, mode ConversationMode) *Conversation {
	if mode == "" {
		mode = ModeOpenChat
	}
	if title == "" {
		title = "New conversation"
	}
	now := time.Now()
	return &Conversation{
		ID:        GenerateID(),
		UserID:    userID,
		Title:     title,
		Mode:      mode,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one persisted turn half. SequenceNumber is assigned by the store.
type Message struct {
	ID             string           `json:"id"`
	ConversationID string           `json:"conversation_id"`
	Role           Role             `json:"role"`
	Content        string           `json:"content"`
	SequenceNumber int              `json:"sequence_number"`
	TokensUsed     *int             `json:"tokens_used,omitempty"`
	Metadata       *MessageMetadata `json:"metadata,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// NewMessage creates an unsequenced message.
func NewMessage(conversationID string, role Role, content string) *Message {
	return &Message{
		ID:             GenerateID(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now(),
	}
}

// TokenUsage is the usage block reported by the model backend.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// MessageMetadata records how an assistant message was produced.
type MessageMetadata struct {
	Model            string           `json:"model,omitempty"`
	FinishReason     string           `json:"finish_reason,omitempty"`
	Usage            TokenUsage       `json:"usage"`
	ConversationMode ConversationMode `json:"conversation_mode,omitempty"`
}
