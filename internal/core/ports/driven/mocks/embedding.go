package mocks

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
)

var _ driven.EmbeddingService = (*MockEmbeddingService)(nil)

// MockEmbeddingService is a mock implementation of EmbeddingService for testing.
// Vectors are derived from the text hash, so equal text always embeds equally.
type MockEmbeddingService struct {
	dimensions int
	model      string

	mu      sync.Mutex
	vectors map[string][]float32

	calls atomic.Int64

	// Custom behavior hooks (optional)
	EmbedFn  func(texts []string) ([][]float32, error)
	HealthFn func() error
}

// NewMockEmbeddingService creates a new MockEmbeddingService
func NewMockEmbeddingService() *MockEmbeddingService {
	return &MockEmbeddingService{
		dimensions: 8,
		model:      "mock-embedding-model",
		vectors:    make(map[string][]float32),
	}
}

// SetVector pins the vector returned for text.
func (m *MockEmbeddingService) SetVector(text string, vector []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors[text] = vector
}

// Calls returns how many Embed/EmbedQuery calls were made.
func (m *MockEmbeddingService) Calls() int {
	return int(m.calls.Load())
}

func (m *MockEmbeddingService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.EmbedFn != nil {
		return m.EmbedFn(texts)
	}

	result := make([][]float32, len(texts))
	for i, text := range texts {
		result[i] = m.vector(text)
	}
	return result, nil
}

func (m *MockEmbeddingService) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := m.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (m *MockEmbeddingService) Dimensions() int {
	return m.dimensions
}

func (m *MockEmbeddingService) Model() string {
	return m.model
}

func (m *MockEmbeddingService) HealthCheck(ctx context.Context) error {
	if m.HealthFn != nil {
		return m.HealthFn()
	}
	return nil
}

func (m *MockEmbeddingService) Close() error {
	return nil
}

func (m *MockEmbeddingService) vector(text string) []float32 {
	m.mu.Lock()
	pinned, ok := m.vectors[text]
	m.mu.Unlock()
	if ok {
		return pinned
	}

	vec := make([]float32, m.dimensions)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(word))
		vec[h.Sum32()%uint32(m.dimensions)]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

// FailingEmbedding returns an EmbedFn that always fails as unavailable.
func FailingEmbedding() func([]string) ([][]float32, error) {
	return func([]string) ([][]float32, error) {
		return nil, domain.ErrEmbeddingUnavailable
	}
}
