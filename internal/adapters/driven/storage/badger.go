package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
)

var _ driven.FileStorage = (*Badger)(nil)

const badgerKeyPrefix = "upload:"

// Badger stores uploads as values in an embedded Badger database.
// Useful for single-node deployments that want one data directory.
type Badger struct {
	db *badger.DB
}

// badgerLogger routes Badger's logs through slog.
type badgerLogger struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (l *badgerLogger) Errorf(msg string, items ...any)   { l.logger.Error(fmt.Sprintf(msg, items...)) }
func (l *badgerLogger) Warningf(msg string, items ...any) { l.logger.Warn(fmt.Sprintf(msg, items...)) }
func (l *badgerLogger) Infof(msg string, items ...any)    { l.logger.Debug(fmt.Sprintf(msg, items...)) }
func (l *badgerLogger) Debugf(msg string, items ...any)   { l.logger.Debug(fmt.Sprintf(msg, items...)) }

// OpenBadger opens (or creates) a Badger database at dir. An empty dir
// opens an in-memory database.
func OpenBadger(dir string, logger *slog.Logger) (*Badger, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = &badgerLogger{logger: logger.With("component", "badger")}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open badger: %v", domain.ErrStorage, err)
	}
	return &Badger{db: db}, nil
}

// Save stores content under "upload:{documentID}_{filename}"
func (s *Badger) Save(ctx context.Context, documentID, filename string, content []byte) (*driven.StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := objectName(documentID, filename)

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(badgerKeyPrefix+name), content)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	return &driven.StoredFile{
		Location: name,
		Checksum: Checksum(content),
		Size:     int64(len(content)),
	}, nil
}

// Read loads stored content and verifies its checksum
func (s *Badger) Read(ctx context.Context, location, checksum string) ([]byte, error) {
	var content []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerKeyPrefix + location))
		if err != nil {
			return err
		}
		content, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
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

// Delete removes stored content
func (s *Badger) Delete(ctx context.Context, location string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(badgerKeyPrefix + location))
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

// Close closes the database
func (s *Badger) Close() error {
	return s.db.Close()
}
