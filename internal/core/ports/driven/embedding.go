package driven

import (
	"context"
)

// EmbeddingService turns text into fixed-length vectors.
// Identical input must produce identical vectors so re-ingestion is reproducible.
// Implementations wrap backend failures with domain.ErrEmbeddingUnavailable and never retry.
type EmbeddingService interface {
	// Embed generates one vector per text, in input order
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates the vector used to query the index
	EmbedQuery(ctx context.Context, query string) ([]float32, error)

	// Dimensions returns the embedding dimension size
	Dimensions() int

	// Model returns the model name being used
	Model() string

	// HealthCheck verifies the embedding service is available
	HealthCheck(ctx context.Context) error

	// Close releases resources held by the embedding service
	Close() error
}
