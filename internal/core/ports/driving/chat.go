package driving

import (
	"context"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
)

// ChatService answers chat turns
type ChatService interface {
	// HandleTurn persists the user message and starts streaming the answer.
	// Tokens arrive on the returned channel as they are generated. The channel
	// closes after a done event on success and without one on failure.
	HandleTurn(ctx context.Context, userID, conversationID, text string) (<-chan domain.TurnEvent, error)

	// ClassifyIntent guesses which conversation mode suits text
	ClassifyIntent(ctx context.Context, text string) (domain.ConversationMode, error)
}

// RetrievalService finds the passages that ground an answer
type RetrievalService interface {
	// Retrieve returns up to topK passage texts from the allowed documents,
	// most similar first. No documents means no passages.
	Retrieve(ctx context.Context, query string, documentIDs []string, topK int) ([]string, error)
}
