package ai

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
)

var _ driven.EmbeddingService = (*LangchainEmbedding)(nil)

// LangchainEmbedding embeds through langchaingo against any OpenAI-compatible
// endpoint (Ollama, LM Studio, vLLM). Such servers rarely report dimensions,
// so Dimensions comes from settings or is probed on first use.
type LangchainEmbedding struct {
	embedder   embeddings.Embedder
	model      string
	dimensions atomic.Int64
	logger     *slog.Logger
}

// NewLangchainEmbedding creates an embedder for a self-hosted model
func NewLangchainEmbedding(settings domain.EmbeddingSettings, logger *slog.Logger) (*LangchainEmbedding, error) {
	if settings.Model == "" {
		return nil, fmt.Errorf("%w: embedding model is required", domain.ErrInvalidInput)
	}
	baseURL := settings.BaseURL
	if baseURL == "" {
		baseURL = domain.AIProviderOllama.DefaultBaseURL()
	}
	token := settings.APIKey
	if token == "" {
		// local servers ignore the token but the client requires one
		token = "none"
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithToken(token),
		openai.WithEmbeddingModel(settings.Model),
	)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	e := &LangchainEmbedding{
		embedder: embedder,
		model:    settings.Model,
		logger:   logger.With("component", "langchain-embedder"),
	}
	e.dimensions.Store(int64(settings.Dimensions))
	return e, nil
}

// Embed generates one vector per text, in input order
func (e *LangchainEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	e.logger.Debug("generating embeddings", "count", len(texts))

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", domain.ErrEmbeddingUnavailable, len(vectors), len(texts))
	}
	e.dimensions.CompareAndSwap(0, int64(len(vectors[0])))
	return vectors, nil
}

// EmbedQuery generates the vector used to query the index
func (e *LangchainEmbedding) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Dimensions returns the configured or observed dimension, 0 if unknown yet
func (e *LangchainEmbedding) Dimensions() int {
	return int(e.dimensions.Load())
}

// Model returns the model name being used
func (e *LangchainEmbedding) Model() string {
	return e.model
}

// HealthCheck embeds a probe string
func (e *LangchainEmbedding) HealthCheck(ctx context.Context) error {
	_, err := e.EmbedQuery(ctx, "health check")
	return err
}

// Close is a no-op
func (e *LangchainEmbedding) Close() error {
	return nil
}
