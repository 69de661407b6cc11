package ai

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
)

var _ driven.EmbeddingService = (*HashEmbedding)(nil)

// HashEmbedding is a deterministic bag-of-words embedder using the hashing
// trick. It needs no network and suits development, tests and demos; its
// similarity reflects shared words only.
type HashEmbedding struct {
	dimensions int
}

// NewHashEmbedding creates a hashing embedder; dimensions <= 0 uses 256.
func NewHashEmbedding(dimensions int) *HashEmbedding {
	if dimensions <= 0 {
		dimensions = 256
	}
	return &HashEmbedding{dimensions: dimensions}
}

// Embed hashes each lower-cased word into a signed bucket and L2-normalises.
func (e *HashEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(text)
	}
	return out, nil
}

// EmbedQuery embeds a single query
func (e *HashEmbedding) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.vector(query), nil
}

func (e *HashEmbedding) vector(text string) []float32 {
	vec := make([]float32, e.dimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New64a()
		h.Write([]byte(w))
		sum := h.Sum64()
		bucket := int(sum % uint64(e.dimensions))
		if sum&(1<<63) != 0 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

// Dimensions returns the vector length
func (e *HashEmbedding) Dimensions() int {
	return e.dimensions
}

// Model names the embedder in document metadata
func (e *HashEmbedding) Model() string {
	return "feature-hash"
}

// HealthCheck always succeeds
func (e *HashEmbedding) HealthCheck(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (e *HashEmbedding) Close() error {
	return nil
}
