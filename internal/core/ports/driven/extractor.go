package driven

// TextExtractor turns the raw bytes of an upload into plain text.
type TextExtractor interface {
	// Extract returns the readable text of content. Content that cannot be
	// read as text yields an error wrapping domain.ErrExtractionFailed.
	Extract(content []byte, mimeType string) (string, error)

	// SupportedTypes returns MIME types this extractor handles.
	// Can include wildcards like "text/*".
	SupportedTypes() []string

	// Priority returns the extractor priority (higher = more specific).
	//   50-89: format-specific (Markdown, HTML, JSON)
	//   10-49: generic text
	//   1-9:   fallback
	Priority() int
}

// ExtractorRegistry picks the best extractor for a MIME type.
type ExtractorRegistry interface {
	// Get returns the highest-priority extractor matching mimeType, or nil.
	Get(mimeType string) TextExtractor

	// Register adds an extractor.
	Register(extractor TextExtractor)

	// Extract resolves an extractor for mimeType and runs it.
	Extract(content []byte, mimeType string) (string, error)

	// List returns all registered MIME types.
	List() []string
}
