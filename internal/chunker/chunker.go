// Package chunker splits extracted document text into overlapping,
// fixed-size windows for embedding.
package chunker

import (
	"fmt"
	"iter"
	"strings"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
)

const (
	DefaultSize    = 500
	DefaultOverlap = 50
)

// Config configures the chunker window. Sizes are counted in characters (runes).
type Config struct {
	// Size is the maximum characters per chunk
	Size int

	// Overlap is how many characters consecutive windows share
	Overlap int
}

// DefaultConfig returns the standard 500/50 window.
func DefaultConfig() Config {
	return Config{
		Size:    DefaultSize,
		Overlap: DefaultOverlap,
	}
}

// Chunker produces fixed-size windows with a constant stride of Size-Overlap.
// A Chunker is immutable and safe for concurrent use.
type Chunker struct {
	size    int
	overlap int
}

// New validates config and returns a Chunker. Size must exceed Overlap,
// and Overlap must not be negative.
func New(config Config) (*Chunker, error) {
	if config.Size <= 0 || config.Overlap < 0 || config.Overlap >= config.Size {
		return nil, fmt.Errorf("%w: chunk size %d must exceed overlap %d >= 0",
			domain.ErrInvalidInput, config.Size, config.Overlap)
	}
	return &Chunker{size: config.Size, overlap: config.Overlap}, nil
}

// Size returns the window size.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the window overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunks lazily yields the chunks of text for documentID.
//
// Window i covers runes [i*(Size-Overlap), min(i*(Size-Overlap)+Size, len)).
// Each window is trimmed and dropped if nothing remains; emitted chunks are
// numbered consecutively by emission order. The sequence can be ranged over
// any number of times and always yields the same chunks.
func (c *Chunker) Chunks(documentID, text string) iter.Seq[domain.Chunk] {
	return func(yield func(domain.Chunk) bool) {
		runes := []rune(text)
		stride := c.size - c.overlap
		index := 0

		for start := 0; start < len(runes); start += stride {
			end := min(start+c.size, len(runes))
			window := strings.TrimSpace(string(runes[start:end]))
			if window == "" {
				continue
			}
			chunk := domain.Chunk{
				DocumentID: documentID,
				Index:      index,
				Text:       window,
				Start:      start,
				End:        end,
			}
			index++
			if !yield(chunk) {
				return
			}
		}
	}
}

// Collect materialises all chunks of text. Convenience for callers that need a slice.
func (c *Chunker) Collect(documentID, text string) []domain.Chunk {
	var out []domain.Chunk
	for chunk := range c.Chunks(documentID, text) {
		out = append(out, chunk)
	}
	return out
}
