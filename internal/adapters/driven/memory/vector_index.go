package memory

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.VectorIndex = (*VectorIndex)(nil)

// VectorIndex is an in-process index using brute-force cosine similarity.
// Suitable for development and single-node deployments.
type VectorIndex struct {
	mu        sync.RWMutex
	dimension int
	entries   map[string]*slot
	nextSeq   uint64
}

type slot struct {
	entry *domain.IndexEntry
	norm  float64
	seq   uint64 // insertion order, kept across overwrites
}

// NewVectorIndex creates an empty index. A dimension of zero is learned
// from the first upsert.
func NewVectorIndex(dimension int) *VectorIndex {
	return &VectorIndex{
		dimension: dimension,
		entries:   make(map[string]*slot),
	}
}

// Upsert inserts or overwrites the entry with the same ID.
func (v *VectorIndex) Upsert(ctx context.Context, entry *domain.IndexEntry) error {
	if entry == nil || entry.ID == "" {
		return fmt.Errorf("%w: entry id required", domain.ErrIndexWrite)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.dimension == 0 {
		v.dimension = len(entry.Vector)
	}
	if len(entry.Vector) != v.dimension {
		return fmt.Errorf("%w: vector dimension %d, index expects %d",
			domain.ErrIndexWrite, len(entry.Vector), v.dimension)
	}

	stored := &domain.IndexEntry{
		ID:         entry.ID,
		DocumentID: entry.DocumentID,
		Vector:     slices.Clone(entry.Vector),
		Text:       entry.Text,
	}

	if existing, ok := v.entries[entry.ID]; ok {
		existing.entry = stored
		existing.norm = norm(stored.Vector)
		return nil
	}

	v.nextSeq++
	v.entries[entry.ID] = &slot{entry: stored, norm: norm(stored.Vector), seq: v.nextSeq}
	return nil
}

// Query returns the topK most similar entries admitted by filter.
func (v *VectorIndex) Query(ctx context.Context, vector []float32, topK int, filter *driven.IndexFilter) ([]*domain.ScoredEntry, error) {
	if topK <= 0 {
		return []*domain.ScoredEntry{}, nil
	}

	var allowed map[string]struct{}
	if filter != nil {
		if len(filter.DocumentIDs) == 0 {
			return []*domain.ScoredEntry{}, nil
		}
		allowed = make(map[string]struct{}, len(filter.DocumentIDs))
		for _, id := range filter.DocumentIDs {
			allowed[id] = struct{}{}
		}
	}

	qnorm := norm(vector)

	type hit struct {
		slot  *slot
		score float64
	}

	v.mu.RLock()
	if v.dimension != 0 && len(vector) != v.dimension {
		dim := v.dimension
		v.mu.RUnlock()
		return nil, fmt.Errorf("%w: query dimension %d, index expects %d",
			domain.ErrInvalidInput, len(vector), dim)
	}
	hits := make([]hit, 0, len(v.entries))
	for _, s := range v.entries {
		if allowed != nil {
			if _, ok := allowed[s.entry.DocumentID]; !ok {
				continue
			}
		}
		hits = append(hits, hit{slot: s, score: cosine(vector, qnorm, s.entry.Vector, s.norm)})
	}
	v.mu.RUnlock()

	slices.SortFunc(hits, func(a, b hit) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		case a.slot.seq < b.slot.seq:
			return -1
		case a.slot.seq > b.slot.seq:
			return 1
		}
		return 0
	})

	if len(hits) > topK {
		hits = hits[:topK]
	}

	results := make([]*domain.ScoredEntry, len(hits))
	for i, h := range hits {
		results[i] = &domain.ScoredEntry{Entry: h.slot.entry, Score: h.score}
	}
	return results, nil
}

// DeleteByDocument removes every entry belonging to documentID.
func (v *VectorIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	for id, s := range v.entries {
		if s.entry.DocumentID == documentID {
			delete(v.entries, id)
		}
	}
	return nil
}

// Count returns the number of stored entries.
func (v *VectorIndex) Count(ctx context.Context) (int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.entries), nil
}

// Ping always succeeds for the in-process index.
func (v *VectorIndex) Ping(ctx context.Context) error {
	return nil
}

func norm(vec []float32) float64 {
	var sum float64
	for _, x := range vec {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosine returns 0 when either vector has zero length.
func cosine(a []float32, anorm float64, b []float32, bnorm float64) float64 {
	if anorm == 0 || bnorm == 0 {
		return 0
	}
	n := min(len(a), len(b))
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (anorm * bnorm)
}
