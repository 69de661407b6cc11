package domain

import "sync"

// RuntimeConfig tracks which backends were wired at startup and whether the
// AI services are currently reachable. Thread-safe for concurrent access.
type RuntimeConfig struct {
	mu sync.RWMutex

	// Static (set at startup, read-only)
	QueueBackend   string // "redis" or "postgres"
	IndexBackend   string // "memory", "pgvector" or "vespa"
	StorageBackend string // "filesystem" or "badger"

	embeddingAvailable bool
	llmAvailable       bool
}

// NewRuntimeConfig creates a new RuntimeConfig with initial values
func NewRuntimeConfig(queueBackend, indexBackend, storageBackend string) *RuntimeConfig {
	return &RuntimeConfig{
		QueueBackend:   queueBackend,
		IndexBackend:   indexBackend,
		StorageBackend: storageBackend,
	}
}

// EmbeddingAvailable returns whether embedding service is available
func (c *RuntimeConfig) EmbeddingAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.embeddingAvailable
}

// LLMAvailable returns whether LLM service is available
func (c *RuntimeConfig) LLMAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.llmAvailable
}

// SetEmbeddingAvailable updates the embedding availability flag
func (c *RuntimeConfig) SetEmbeddingAvailable(available bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.embeddingAvailable = available
}

// SetLLMAvailable updates the LLM availability flag
func (c *RuntimeConfig) SetLLMAvailable(available bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.llmAvailable = available
}

// CanIngest returns true if uploaded documents can be embedded
func (c *RuntimeConfig) CanIngest() bool {
	return c.EmbeddingAvailable()
}

// CanChat returns true if chat turns can be answered
func (c *RuntimeConfig) CanChat() bool {
	return c.LLMAvailable()
}

// CanGround returns true if document questions can be answered
func (c *RuntimeConfig) CanGround() bool {
	return c.EmbeddingAvailable() && c.LLMAvailable()
}
