package ai

import (
	"fmt"
	"log/slog"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
)

// NewEmbeddingService creates an embedding service from settings.
// Returns nil, nil when embedding is not configured.
func NewEmbeddingService(settings domain.EmbeddingSettings, logger *slog.Logger) (driven.EmbeddingService, error) {
	if !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderOpenAI:
		svc, err := NewOpenAIEmbedding(settings)
		if err != nil {
			return nil, err
		}
		return svc, nil
	case domain.AIProviderOllama:
		svc, err := NewLangchainEmbedding(settings, logger)
		if err != nil {
			return nil, err
		}
		return svc, nil
	case domain.AIProviderHash:
		return NewHashEmbedding(settings.Dimensions), nil
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidProvider, settings.Provider)
	}
}

// NewLLMService creates a chat backend from settings.
// Returns nil, nil when the LLM is not configured.
func NewLLMService(settings domain.LLMSettings) (driven.LLMService, error) {
	if !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderGroq, domain.AIProviderOpenAI, domain.AIProviderOllama:
		svc, err := NewOpenAIChat(settings)
		if err != nil {
			return nil, err
		}
		return svc, nil
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidProvider, settings.Provider)
	}
}
