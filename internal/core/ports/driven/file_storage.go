package driven

import (
	"context"
)

// StoredFile describes bytes persisted by a FileStorage.
type StoredFile struct {
	Location string // backend-specific key or path
	Checksum string // hex BLAKE2b-256 of the content
	Size     int64
}

// FileStorage keeps uploaded document bytes until ingestion reads them.
type FileStorage interface {
	// Save stores content under a name derived from documentID and filename
	Save(ctx context.Context, documentID, filename string, content []byte) (*StoredFile, error)

	// Read loads stored content and verifies it against checksum when non-empty
	Read(ctx context.Context, location, checksum string) ([]byte, error)

	// Delete removes stored content. Deleting a missing file is not an error.
	Delete(ctx context.Context, location string) error

	// Close releases backend resources
	Close() error
}
