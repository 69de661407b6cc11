package chunker

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"defaults", DefaultConfig(), false},
		{"zero overlap", Config{Size: 5, Overlap: 0}, false},
		{"overlap equals size", Config{Size: 5, Overlap: 5}, true},
		{"overlap exceeds size", Config{Size: 5, Overlap: 6}, true},
		{"negative overlap", Config{Size: 5, Overlap: -1}, true},
		{"zero size", Config{Size: 0, Overlap: 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.config)
			if tt.wantErr {
				assert.True(t, errors.Is(err, domain.ErrInvalidInput), "expected ErrInvalidInput, got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 500, cfg.Size)
	assert.Equal(t, 50, cfg.Overlap)
}

func TestChunks_ExactSplit(t *testing.T) {
	c, err := New(Config{Size: 5, Overlap: 0})
	require.NoError(t, err)

	chunks := c.Collect("doc-1", "AAAAABBBBB")

	require.Len(t, chunks, 2)
	assert.Equal(t, "AAAAA", chunks[0].Text)
	assert.Equal(t, "BBBBB", chunks[1].Text)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 1, chunks[1].Index)
	assert.Equal(t, "doc-1", chunks[1].DocumentID)
}

func TestChunks_ShortTextYieldsOneTrimmedChunk(t *testing.T) {
	c, err := New(DefaultConfig())
	require.NoError(t, err)

	chunks := c.Collect("doc-1", "  hello world \n")

	require.Len(t, chunks, 1)
	assert.Equal(t, "hello world", chunks[0].Text)
}

func TestChunks_EmptyAndWhitespace(t *testing.T) {
	c, err := New(Config{Size: 4, Overlap: 1})
	require.NoError(t, err)

	assert.Empty(t, c.Collect("doc-1", ""))
	assert.Empty(t, c.Collect("doc-1", "        \n\t "))
}

func TestChunks_OverlapCoversText(t *testing.T) {
	c, err := New(Config{Size: 10, Overlap: 3})
	require.NoError(t, err)

	text := "abcdefghijklmnopqrstuvwxyz0123456789"
	chunks := c.Collect("doc-1", text)
	require.NotEmpty(t, chunks)

	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, len(text), chunks[len(chunks)-1].End)

	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		assert.Equal(t, prev.Start+7, cur.Start, "stride must be size-overlap")
		if cur.End-cur.Start == 10 || i < len(chunks)-1 {
			assert.Equal(t, 3, prev.End-cur.Start, "consecutive windows overlap by exactly 3")
		}
		assert.LessOrEqual(t, cur.End-cur.Start, 10)
	}
}

func TestChunks_SkipsBlankWindowsWithoutGaps(t *testing.T) {
	c, err := New(Config{Size: 5, Overlap: 0})
	require.NoError(t, err)

	chunks := c.Collect("doc-1", "AAAAA     BBBBB")

	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 1, chunks[1].Index)
	assert.Equal(t, 10, chunks[1].Start)
}

func TestChunks_Restartable(t *testing.T) {
	c, err := New(Config{Size: 3, Overlap: 1})
	require.NoError(t, err)

	seq := c.Chunks("doc-1", "the quick brown fox")

	var first, second []string
	for ch := range seq {
		first = append(first, ch.Text)
	}
	for ch := range seq {
		second = append(second, ch.Text)
	}
	assert.Equal(t, first, second)
}

func TestChunks_EarlyStop(t *testing.T) {
	c, err := New(Config{Size: 2, Overlap: 0})
	require.NoError(t, err)

	n := 0
	for range c.Chunks("doc-1", strings.Repeat("x", 100)) {
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)
}

func TestChunks_MultibyteRunes(t *testing.T) {
	c, err := New(Config{Size: 2, Overlap: 0})
	require.NoError(t, err)

	chunks := c.Collect("doc-1", "héllo")

	require.Len(t, chunks, 3)
	assert.Equal(t, "hé", chunks[0].Text)
	assert.Equal(t, "ll", chunks[1].Text)
	assert.Equal(t, "o", chunks[2].Text)
}
