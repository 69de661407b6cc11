package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
)

var _ driven.FileStorage = (*Filesystem)(nil)

// Filesystem stores uploads as flat files under a base directory.
// Locations are file names relative to that directory.
type Filesystem struct {
	dir string
}

// NewFilesystem creates the base directory if needed
func NewFilesystem(dir string) (*Filesystem, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create upload dir: %v", domain.ErrStorage, err)
	}
	return &Filesystem{dir: dir}, nil
}

// Save writes content atomically via a temp file and rename
func (s *Filesystem) Save(ctx context.Context, documentID, filename string, content []byte) (*driven.StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := objectName(documentID, filename)

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	return &driven.StoredFile{
		Location: name,
		Checksum: Checksum(content),
		Size:     int64(len(content)),
	}, nil
}

// Read loads a stored file and verifies its checksum
func (s *Filesystem) Read(ctx context.Context, location, checksum string) ([]byte, error) {
	path, err := s.resolve(location)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, location)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	if err := verify(content, checksum); err != nil {
		return nil, err
	}
	return content, nil
}

// Delete removes a stored file
func (s *Filesystem) Delete(ctx context.Context, location string) error {
	path, err := s.resolve(location)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

// Close is a no-op
func (s *Filesystem) Close() error {
	return nil
}

// resolve rejects locations that would escape the base directory.
func (s *Filesystem) resolve(location string) (string, error) {
	if location == "" || !filepath.IsLocal(location) || filepath.Base(location) != location {
		return "", fmt.Errorf("%w: invalid storage location %q", domain.ErrInvalidInput, location)
	}
	return filepath.Join(s.dir, location), nil
}
