package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
)

const sweepLockName = "sweep_orphans"

// SweeperConfig holds the collaborators of the orphan sweeper.
type SweeperConfig struct {
	Documents driven.DocumentStore
	Index     driven.VectorIndex
	Lock      driven.DistributedLock // optional
	Logger    *slog.Logger
	BatchSize int           // FAILED documents per sweep (default: 500)
	LockTTL   time.Duration // default: 5m
}

// OrphanSweeper deletes index entries that belong to FAILED documents.
// Ingestion already rolls back on failure; the sweep catches rollbacks that
// did not go through.
type OrphanSweeper struct {
	documents driven.DocumentStore
	index     driven.VectorIndex
	lock      driven.DistributedLock
	logger    *slog.Logger
	batchSize int
	lockTTL   time.Duration
}

// NewOrphanSweeper creates an OrphanSweeper
func NewOrphanSweeper(cfg SweeperConfig) *OrphanSweeper {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 500
	}
	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &OrphanSweeper{
		documents: cfg.Documents,
		index:     cfg.Index,
		lock:      cfg.Lock,
		logger:    logger,
		batchSize: batch,
		lockTTL:   ttl,
	}
}

// Sweep returns how many FAILED documents were cleared.
// It returns 0 without error when another instance is already sweeping.
func (s *OrphanSweeper) Sweep(ctx context.Context) (int, error) {
	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx, sweepLockName, s.lockTTL)
		if err != nil {
			return 0, fmt.Errorf("acquire sweep lock: %w", err)
		}
		if !acquired {
			s.logger.Debug("orphan sweep already running elsewhere")
			return 0, nil
		}
		defer func() {
			if err := s.lock.Release(context.WithoutCancel(ctx), sweepLockName); err != nil {
				s.logger.Warn("failed to release sweep lock", "error", err)
			}
		}()
	}

	failed, err := s.documents.ListByStatus(ctx, domain.DocumentStatusFailed, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list failed documents: %w", err)
	}

	swept := 0
	for _, doc := range failed {
		if err := ctx.Err(); err != nil {
			return swept, err
		}
		if err := s.index.DeleteByDocument(ctx, doc.ID); err != nil {
			s.logger.Warn("failed to sweep document entries",
				"document_id", doc.ID,
				"error", err,
			)
			continue
		}
		swept++
	}

	if swept > 0 {
		s.logger.Info("orphan sweep finished", "documents", swept)
	}
	return swept, nil
}
