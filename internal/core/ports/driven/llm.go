package driven

import (
	"context"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
)

// LLMService is a chat-completion backend.
type LLMService interface {
	// Stream opens a streaming completion. Fragments are returned raw so the
	// caller decides how to interpret them.
	Stream(ctx context.Context, messages []domain.ChatMessage, opts domain.GenerateOptions) (FragmentStream, error)

	// Generate runs a non-streaming completion and returns the full text
	Generate(ctx context.Context, messages []domain.ChatMessage, opts domain.GenerateOptions) (string, error)

	// Model returns the model name being used
	Model() string

	// Ping verifies the LLM service is available
	Ping(ctx context.Context) error

	// Close releases resources held by the LLM service
	Close() error
}

// FragmentStream yields raw completion fragments in arrival order.
type FragmentStream interface {
	// Recv returns the next fragment. It returns io.EOF only after the
	// backend sent its explicit end-of-stream sentinel. A connection that
	// closes before the sentinel yields an error wrapping domain.ErrStreamFailed.
	Recv() ([]byte, error)

	// Close releases the underlying connection. Safe to call more than once.
	Close() error
}
