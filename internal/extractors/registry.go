package extractors

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ExtractorRegistry = (*Registry)(nil)

// Registry selects text extractors by MIME type and priority.
type Registry struct {
	mu         sync.RWMutex
	extractors []driven.TextExtractor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		extractors: make([]driven.TextExtractor, 0),
	}
}

// Register adds an extractor.
func (r *Registry) Register(extractor driven.TextExtractor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.extractors = append(r.extractors, extractor)
}

// Get returns the highest-priority extractor matching mimeType, or nil.
// Among equal priorities the earliest registration wins.
func (r *Registry) Get(mimeType string) driven.TextExtractor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best driven.TextExtractor
	for _, e := range r.extractors {
		if !matchesMIMEType(e.SupportedTypes(), mimeType) {
			continue
		}
		if best == nil || e.Priority() > best.Priority() {
			best = e
		}
	}
	return best
}

// Extract resolves an extractor for mimeType and runs it.
func (r *Registry) Extract(content []byte, mimeType string) (string, error) {
	e := r.Get(mimeType)
	if e == nil {
		return "", fmt.Errorf("%w: unsupported content type %q", domain.ErrExtractionFailed, mimeType)
	}
	return e.Extract(content, mimeType)
}

// List returns all registered MIME types.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	typeSet := make(map[string]struct{})
	for _, e := range r.extractors {
		for _, t := range e.SupportedTypes() {
			typeSet[t] = struct{}{}
		}
	}

	types := make([]string, 0, len(typeSet))
	for t := range typeSet {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// matchesMIMEType checks if any of the supported types match the given MIME type.
// Supports "type/*" and "*/*" wildcards; parameters such as charset are ignored.
func matchesMIMEType(supportedTypes []string, mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if idx := strings.Index(mimeType, ";"); idx != -1 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}

	for _, supported := range supportedTypes {
		supported = strings.ToLower(strings.TrimSpace(supported))

		switch {
		case supported == "*/*":
			return true
		case supported == mimeType:
			return true
		case strings.HasSuffix(supported, "/*"):
			if strings.HasPrefix(mimeType, supported[:len(supported)-1]) {
				return true
			}
		}
	}

	return false
}

// DefaultRegistry creates a registry with the built-in extractors.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(&PlaintextExtractor{})
	r.Register(&MarkdownExtractor{})
	r.Register(&HTMLExtractor{})
	r.Register(&JSONExtractor{})

	return r
}
