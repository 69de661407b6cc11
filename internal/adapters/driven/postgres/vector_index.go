package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.VectorIndex = (*VectorIndex)(nil)

// VectorIndex implements driven.VectorIndex on the pgvector extension.
// Entries live in index_entries; seq records first insertion and breaks
// similarity ties.
type VectorIndex struct {
	db *DB
}

// NewVectorIndex creates a new pgvector-backed index
func NewVectorIndex(db *DB) *VectorIndex {
	return &VectorIndex{db: db}
}

// EnsureSchema creates the pgvector extension and the index_entries table
// sized for the embedding dimension. Idempotent.
func (v *VectorIndex) EnsureSchema(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("%w: dimensions must be positive", domain.ErrInvalidInput)
	}

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS index_entries (
			seq         BIGSERIAL,
			id          TEXT PRIMARY KEY,
			document_id VARCHAR(64) NOT NULL,
			text        TEXT NOT NULL,
			embedding   vector(%d) NOT NULL
		)`, dimensions),
		`CREATE INDEX IF NOT EXISTS idx_index_entries_document ON index_entries (document_id)`,
		`CREATE INDEX IF NOT EXISTS idx_index_entries_embedding ON index_entries USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range stmts {
		if _, err := v.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure vector schema: %w", err)
		}
	}
	return nil
}

// Upsert inserts or overwrites an entry. seq is left untouched on conflict.
func (v *VectorIndex) Upsert(ctx context.Context, entry *domain.IndexEntry) error {
	if entry == nil || entry.ID == "" || len(entry.Vector) == 0 {
		return fmt.Errorf("%w: entry requires an id and a vector", domain.ErrIndexWrite)
	}

	_, err := v.db.ExecContext(ctx, `
		INSERT INTO index_entries (id, document_id, text, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			text = EXCLUDED.text,
			embedding = EXCLUDED.embedding`,
		entry.ID,
		entry.DocumentID,
		entry.Text,
		pgvector.NewVector(entry.Vector),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIndexWrite, err)
	}
	return nil
}

// Query returns the topK entries closest to vector by cosine distance
func (v *VectorIndex) Query(ctx context.Context, vector []float32, topK int, filter *driven.IndexFilter) ([]*domain.ScoredEntry, error) {
	results := []*domain.ScoredEntry{}
	if topK <= 0 || (filter != nil && len(filter.DocumentIDs) == 0) {
		return results, nil
	}

	query := new(strings.Builder)
	query.WriteString(`
		SELECT id, document_id, text, embedding, 1 - (embedding <=> $1) AS score
		FROM index_entries`)
	args := []any{pgvector.NewVector(vector), topK}
	if filter != nil {
		query.WriteString(` WHERE document_id = ANY($3)`)
		args = append(args, pq.Array(filter.DocumentIDs))
	}
	query.WriteString(` ORDER BY embedding <=> $1, seq LIMIT $2`)

	rows, err := v.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var entry domain.IndexEntry
		var embedding pgvector.Vector
		var score sql.NullFloat64
		if err := rows.Scan(&entry.ID, &entry.DocumentID, &entry.Text, &embedding, &score); err != nil {
			return nil, err
		}
		entry.Vector = embedding.Slice()
		results = append(results, &domain.ScoredEntry{Entry: &entry, Score: score.Float64})
	}
	return results, rows.Err()
}

// DeleteByDocument removes all entries for a document
func (v *VectorIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	if _, err := v.db.ExecContext(ctx, `DELETE FROM index_entries WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIndexWrite, err)
	}
	return nil
}

// Count returns the number of stored entries
func (v *VectorIndex) Count(ctx context.Context) (int, error) {
	var n int
	err := v.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM index_entries`).Scan(&n)
	return n, err
}

// Ping checks the database is reachable
func (v *VectorIndex) Ping(ctx context.Context) error {
	return v.db.PingContext(ctx)
}
