package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/custodia-labs/sercha-chat/internal/chunker"
	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-chat/internal/runtime"
)

var _ driving.IngestionService = (*IngestionPipeline)(nil)

// finishTimeout bounds the terminal status write, which runs even when
// the ingestion context has been cancelled.
const finishTimeout = 10 * time.Second

// IngestionConfig holds the collaborators of an IngestionPipeline.
type IngestionConfig struct {
	Documents  driven.DocumentStore
	Files      driven.FileStorage
	Extractors driven.ExtractorRegistry
	Index      driven.VectorIndex
	Services   *runtime.Services
	Chunker    *chunker.Chunker
	Logger     *slog.Logger

	// Concurrency caps parallel embedding calls across all ingestions (default: 4)
	Concurrency int

	// BatchSize is how many chunks go into one embedding call (default: 16)
	BatchSize int
}

// IngestionPipeline turns a stored upload into index entries: extract,
// chunk, embed, upsert. Embedding batches run on a shared pool; index
// writes happen afterwards, one at a time, in chunk order.
type IngestionPipeline struct {
	documents  driven.DocumentStore
	files      driven.FileStorage
	extractors driven.ExtractorRegistry
	index      driven.VectorIndex
	services   *runtime.Services
	chunker    *chunker.Chunker
	logger     *slog.Logger
	batchSize  int

	pool *ants.Pool
}

// NewIngestionPipeline creates a pipeline. Call Close to release the embedding pool.
func NewIngestionPipeline(cfg IngestionConfig) (*IngestionPipeline, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 16
	}
	ch := cfg.Chunker
	if ch == nil {
		var err error
		if ch, err = chunker.New(chunker.DefaultConfig()); err != nil {
			return nil, err
		}
	}

	pool, err := ants.NewPool(concurrency)
	if err != nil {
		return nil, fmt.Errorf("create embedding pool: %w", err)
	}

	return &IngestionPipeline{
		documents:  cfg.Documents,
		files:      cfg.Files,
		extractors: cfg.Extractors,
		index:      cfg.Index,
		services:   cfg.Services,
		chunker:    ch,
		logger:     logger,
		batchSize:  batchSize,
		pool:       pool,
	}, nil
}

// Close releases the embedding pool.
func (p *IngestionPipeline) Close() {
	p.pool.Release()
}

// Ingest drives one document from PROCESSING to COMPLETED or FAILED.
//
// A document that is already terminal is left alone, so a redelivered task is
// harmless. Document-level failures are recorded on the row and reported in the
// result; the returned error is reserved for failures to load or update the row.
func (p *IngestionPipeline) Ingest(ctx context.Context, documentID string) (*domain.IngestResult, error) {
	start := time.Now()

	doc, err := p.documents.Get(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", documentID, err)
	}
	if doc.Status != domain.DocumentStatusProcessing {
		p.logger.Debug("document already terminal, skipping",
			"document_id", doc.ID,
			"status", doc.Status,
		)
		return resultFor(doc, start), nil
	}

	count, model, runErr := p.run(ctx, doc)
	if runErr == nil {
		err = doc.Complete(count, model)
	} else {
		err = doc.Fail(runErr.Error())
	}
	if err != nil {
		return nil, err
	}

	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	if runErr != nil {
		p.rollback(finishCtx, doc.ID)
	}

	if err := p.documents.Finish(finishCtx, doc); err != nil {
		if errors.Is(err, domain.ErrNotFound) && runErr == nil {
			// Deleted while we were indexing.
			p.rollback(finishCtx, doc.ID)
		}
		if errors.Is(err, domain.ErrInvalidTransition) {
			// Another run got there first; report what it recorded.
			if current, getErr := p.documents.Get(finishCtx, doc.ID); getErr == nil {
				return resultFor(current, start), nil
			}
		}
		return nil, fmt.Errorf("finish document %s: %w", doc.ID, err)
	}

	result := resultFor(doc, start)
	if runErr != nil {
		p.logger.Warn("ingestion failed",
			"document_id", doc.ID,
			"duration", result.Duration,
			"error", runErr,
		)
	} else {
		p.logger.Info("document ingested",
			"document_id", doc.ID,
			"chunks", count,
			"duration", result.Duration,
		)
	}
	return result, nil
}

// run does the actual work and returns the number of indexed chunks. Text
// that yields no chunks is a successful run with a count of zero.
func (p *IngestionPipeline) run(ctx context.Context, doc *domain.Document) (int, string, error) {
	embedder := p.services.EmbeddingService()
	if embedder == nil {
		return 0, "", fmt.Errorf("%w: no embedding backend configured", domain.ErrEmbeddingUnavailable)
	}

	content, err := p.files.Read(ctx, doc.StorageLocation, doc.Checksum)
	if err != nil {
		return 0, "", fmt.Errorf("read upload: %w", err)
	}

	text, err := p.extractors.Extract(content, doc.ContentType)
	if err != nil {
		return 0, "", err
	}

	batches, err := p.embed(ctx, embedder, doc.ID, text)
	if err != nil {
		return 0, "", err
	}

	count := 0
	for _, b := range batches {
		for i, chunk := range b.chunks {
			if err := p.index.Upsert(ctx, domain.NewIndexEntry(chunk, b.vectors[i])); err != nil {
				if !errors.Is(err, domain.ErrIndexWrite) {
					err = fmt.Errorf("%w: %w", domain.ErrIndexWrite, err)
				}
				return 0, "", err
			}
			count++
		}
	}
	return count, embedder.Model(), nil
}

type embedBatch struct {
	chunks  []domain.Chunk
	vectors [][]float32
}

// embed groups chunks into batches and embeds them on the pool.
// Batches keep chunk order; the first failure cancels the rest.
func (p *IngestionPipeline) embed(ctx context.Context, embedder driven.EmbeddingService, documentID, text string) ([]*embedBatch, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var (
		batches []*embedBatch
		wg      sync.WaitGroup
	)

	submit := func(b *embedBatch) error {
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			texts := make([]string, len(b.chunks))
			for i, c := range b.chunks {
				texts[i] = c.Text
			}
			vectors, err := embedder.Embed(ctx, texts)
			if err == nil && len(vectors) != len(texts) {
				err = fmt.Errorf("%w: got %d vectors for %d chunks",
					domain.ErrEmbeddingUnavailable, len(vectors), len(texts))
			}
			if err != nil {
				cancel(asEmbeddingError(err))
				return
			}
			b.vectors = vectors
		})
		if err != nil {
			wg.Done()
		}
		return err
	}

	current := &embedBatch{}
	for chunk := range p.chunker.Chunks(documentID, text) {
		if ctx.Err() != nil {
			break
		}
		current.chunks = append(current.chunks, chunk)
		if len(current.chunks) < p.batchSize {
			continue
		}
		batches = append(batches, current)
		if err := submit(current); err != nil {
			cancel(fmt.Errorf("submit embedding batch: %w", err))
			break
		}
		current = &embedBatch{}
	}
	if len(current.chunks) > 0 && ctx.Err() == nil {
		batches = append(batches, current)
		if err := submit(current); err != nil {
			cancel(fmt.Errorf("submit embedding batch: %w", err))
		}
	}

	wg.Wait()
	if err := context.Cause(ctx); err != nil {
		return nil, err
	}
	return batches, nil
}

// rollback removes whatever a failed run managed to index.
// The orphan sweep retries documents this misses.
func (p *IngestionPipeline) rollback(ctx context.Context, documentID string) {
	if err := p.index.DeleteByDocument(ctx, documentID); err != nil {
		p.logger.Warn("failed to roll back partial index entries",
			"document_id", documentID,
			"error", err,
		)
	}
}

func resultFor(doc *domain.Document, start time.Time) *domain.IngestResult {
	return &domain.IngestResult{
		DocumentID: doc.ID,
		Status:     doc.Status,
		ChunkCount: doc.ChunkCount(),
		Error:      doc.ErrorMessage,
		Duration:   time.Since(start),
	}
}
