package extractors

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
)

// HTMLExtractor returns the visible text of an HTML document.
type HTMLExtractor struct{}

// skipped elements never contribute text
var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"head":     true,
}

// block elements end the current line
var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "pre": true, "blockquote": true, "table": true,
}

func (e *HTMLExtractor) Extract(content []byte, mimeType string) (string, error) {
	if _, err := decodeText(content); err != nil {
		return "", err
	}

	z := html.NewTokenizer(bytes.NewReader(content))
	var b strings.Builder
	skipDepth := 0

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return "", fmt.Errorf("%w: %v", domain.ErrExtractionFailed, err)
			}
			return collapseWhitespace(b.String()), nil
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if skippedElements[tag] && tt == html.StartTagToken {
				skipDepth++
			}
			if blockElements[tag] {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if skippedElements[tag] && skipDepth > 0 {
				skipDepth--
			}
			if blockElements[tag] {
				b.WriteByte('\n')
			}
		case html.TextToken:
			if skipDepth == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func (e *HTMLExtractor) SupportedTypes() []string {
	return []string{"text/html", "application/xhtml+xml"}
}

func (e *HTMLExtractor) Priority() int {
	return 50
}

// collapseWhitespace squeezes runs of spaces on each line and drops blank lines.
func collapseWhitespace(s string) string {
	lines := strings.Split(normaliseLineEndings(s), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
