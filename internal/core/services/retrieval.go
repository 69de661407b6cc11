package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-chat/internal/runtime"
)

// DefaultTopK is how many passages ground an answer when the caller does not say.
const DefaultTopK = 3

var _ driving.RetrievalService = (*retrievalService)(nil)

type retrievalService struct {
	index    driven.VectorIndex
	services *runtime.Services
}

// NewRetrievalService creates a RetrievalService.
// The embedding backend is looked up per call via runtime.Services.
func NewRetrievalService(index driven.VectorIndex, services *runtime.Services) driving.RetrievalService {
	return &retrievalService{
		index:    index,
		services: services,
	}
}

// Retrieve embeds query once and returns passage texts in index order.
// An empty allowlist skips the query entirely: querying unfiltered would
// surface passages from other conversations.
func (s *retrievalService) Retrieve(ctx context.Context, query string, documentIDs []string, topK int) ([]string, error) {
	if len(documentIDs) == 0 {
		return []string{}, nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	embedder := s.services.EmbeddingService()
	if embedder == nil {
		return nil, fmt.Errorf("%w: no embedding backend configured", domain.ErrEmbeddingUnavailable)
	}

	vector, err := embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, asEmbeddingError(err)
	}

	hits, err := s.index.Query(ctx, vector, topK, &driven.IndexFilter{DocumentIDs: documentIDs})
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	passages := make([]string, 0, len(hits))
	for _, hit := range hits {
		passages = append(passages, hit.Entry.Text)
	}
	return passages, nil
}

// asEmbeddingError makes sure an embedder failure carries ErrEmbeddingUnavailable.
func asEmbeddingError(err error) error {
	if errors.Is(err, domain.ErrEmbeddingUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
}
