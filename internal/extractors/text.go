package extractors

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
)

// PlaintextExtractor reads any UTF-8 text. It is the fallback for unknown
// types and rejects content that looks binary.
type PlaintextExtractor struct{}

func (e *PlaintextExtractor) Extract(content []byte, mimeType string) (string, error) {
	text, err := decodeText(content)
	if err != nil {
		return "", err
	}
	return normaliseLineEndings(text), nil
}

func (e *PlaintextExtractor) SupportedTypes() []string {
	return []string{"text/plain", "*/*"}
}

func (e *PlaintextExtractor) Priority() int {
	return 1
}

// MarkdownExtractor keeps Markdown source as-is apart from blank-line runs.
type MarkdownExtractor struct{}

func (e *MarkdownExtractor) Extract(content []byte, mimeType string) (string, error) {
	text, err := decodeText(content)
	if err != nil {
		return "", err
	}
	text = normaliseLineEndings(text)
	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}
	return text, nil
}

func (e *MarkdownExtractor) SupportedTypes() []string {
	return []string{"text/markdown", "text/x-markdown"}
}

func (e *MarkdownExtractor) Priority() int {
	return 50
}

// JSONExtractor re-indents JSON documents so chunk boundaries fall on lines.
type JSONExtractor struct{}

func (e *JSONExtractor) Extract(content []byte, mimeType string) (string, error) {
	if !json.Valid(content) {
		return "", fmt.Errorf("%w: malformed JSON", domain.ErrExtractionFailed)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, content, "", "  "); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrExtractionFailed, err)
	}
	return buf.String(), nil
}

func (e *JSONExtractor) SupportedTypes() []string {
	return []string{"application/json"}
}

func (e *JSONExtractor) Priority() int {
	return 50
}

// decodeText validates content as UTF-8 text, stripping a leading BOM.
func decodeText(content []byte) (string, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(content) {
		return "", fmt.Errorf("%w: content is not valid UTF-8", domain.ErrExtractionFailed)
	}
	if bytes.IndexByte(content, 0) != -1 {
		return "", fmt.Errorf("%w: binary content", domain.ErrExtractionFailed)
	}
	return string(content), nil
}

func normaliseLineEndings(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
