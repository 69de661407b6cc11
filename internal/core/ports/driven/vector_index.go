package driven

import (
	"context"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
)

// IndexFilter restricts a query to an allowlist of documents.
// A nil *IndexFilter means unfiltered. A non-nil filter with no
// DocumentIDs matches nothing.
type IndexFilter struct {
	DocumentIDs []string
}

// VectorIndex stores embedded chunks and answers nearest-neighbour queries.
// Implementations must be safe for concurrent use.
type VectorIndex interface {
	// Upsert inserts or overwrites the entry with the same ID. An overwritten
	// entry keeps its original insertion position.
	Upsert(ctx context.Context, entry *domain.IndexEntry) error

	// Query returns at most topK entries by descending cosine similarity,
	// ties broken by insertion order. A vector whose dimension differs from
	// the stored entries is an error, never a truncated comparison.
	Query(ctx context.Context, vector []float32, topK int, filter *IndexFilter) ([]*domain.ScoredEntry, error)

	// DeleteByDocument removes every entry belonging to documentID.
	DeleteByDocument(ctx context.Context, documentID string) error

	// Count returns the number of stored entries
	Count(ctx context.Context) (int, error)

	// Ping verifies the index backend is reachable
	Ping(ctx context.Context) error
}
