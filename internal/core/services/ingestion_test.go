package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/custodia-labs/sercha-chat/internal/adapters/driven/memory"
	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven/mocks"
)

// flakyIndex fails every upsert after the first n.
type flakyIndex struct {
	*memory.VectorIndex
	allowed int64
	upserts atomic.Int64
}

func (f *flakyIndex) Upsert(ctx context.Context, entry *domain.IndexEntry) error {
	if f.upserts.Add(1) > f.allowed {
		return errors.New("disk full")
	}
	return f.VectorIndex.Upsert(ctx, entry)
}

var _ driven.VectorIndex = (*flakyIndex)(nil)

func onehot(i, n int) []float32 {
	v := make([]float32, n)
	v[i] = 1
	return v
}

func TestIngest_TwoChunkDocument(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	conv := env.conversation(t, "user-1", domain.ModeDocumentQA)
	doc := env.upload(t, conv, "ab.txt", "text/plain", "AAAAABBBBB")
	env.embedder.SetVector("AAAAA", onehot(0, 8))
	env.embedder.SetVector("BBBBB", onehot(1, 8))

	result, err := env.pipeline(t, 5, 0).Ingest(ctx, doc.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != domain.DocumentStatusCompleted || result.ChunkCount != 2 {
		t.Fatalf("expected COMPLETED with 2 chunks, got %+v", result)
	}

	stored, _ := env.documents.Get(ctx, doc.ID)
	if stored.Status != domain.DocumentStatusCompleted {
		t.Errorf("expected stored status COMPLETED, got %s", stored.Status)
	}
	if stored.ChunkCount() != 2 {
		t.Errorf("expected chunk count 2, got %d", stored.ChunkCount())
	}
	if stored.Metadata.EmbeddingModel != env.embedder.Model() {
		t.Errorf("expected embedding model to be recorded, got %q", stored.Metadata.EmbeddingModel)
	}

	if n, _ := env.index.Count(ctx); n != 2 {
		t.Fatalf("expected 2 index entries, got %d", n)
	}
	for i, want := range []string{"AAAAA", "BBBBB"} {
		vec, _ := env.embedder.EmbedQuery(ctx, want)
		hits, _ := env.index.Query(ctx, vec, 1, &driven.IndexFilter{DocumentIDs: []string{doc.ID}})
		if len(hits) != 1 || hits[0].Entry.ID != domain.EntryID(doc.ID, i) || hits[0].Entry.Text != want {
			t.Errorf("expected entry %s with text %q, got %+v", domain.EntryID(doc.ID, i), want, hits)
		}
	}
}

func TestIngest_KeepsChunkOrderAcrossBatches(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	conv := env.conversation(t, "user-1", domain.ModeDocumentQA)

	var sb strings.Builder
	for i := range 40 {
		fmt.Fprintf(&sb, "w%02d ", i)
		env.embedder.SetVector(fmt.Sprintf("w%02d", i), onehot(i, 40))
	}
	doc := env.upload(t, conv, "words.txt", "text/plain", sb.String())

	result, err := env.pipeline(t, 4, 0).Ingest(ctx, doc.ID)
	if err != nil || result.ChunkCount != 40 {
		t.Fatalf("expected 40 chunks, got %+v, %v", result, err)
	}

	for i := range 40 {
		word := fmt.Sprintf("w%02d", i)
		vec, _ := env.embedder.EmbedQuery(ctx, word)
		hits, _ := env.index.Query(ctx, vec, 1, nil)
		if len(hits) != 1 || hits[0].Entry.ID != domain.EntryID(doc.ID, i) {
			t.Fatalf("chunk %d: expected entry %s, got %+v", i, domain.EntryID(doc.ID, i), hits)
		}
	}
}

func TestIngest_BlankTextCompletesEmpty(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	conv := env.conversation(t, "user-1", domain.ModeDocumentQA)
	doc := env.upload(t, conv, "blank.txt", "text/plain", "   \n\n  ")

	result, err := env.pipeline(t, 5, 0).Ingest(ctx, doc.ID)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.Status != domain.DocumentStatusCompleted || result.ChunkCount != 0 {
		t.Fatalf("expected COMPLETED with 0 chunks, got %s/%d (%s)", result.Status, result.ChunkCount, result.Error)
	}

	stored, _ := env.documents.Get(ctx, doc.ID)
	if stored.Status != domain.DocumentStatusCompleted {
		t.Errorf("expected stored status COMPLETED, got %s", stored.Status)
	}
	if stored.Metadata == nil || stored.Metadata.ChunkCount == nil || *stored.Metadata.ChunkCount != 0 {
		t.Errorf("expected chunks_count 0 in metadata, got %+v", stored.Metadata)
	}
	if stored.ErrorMessage != "" {
		t.Errorf("expected no error message, got %q", stored.ErrorMessage)
	}
	if env.embedder.Calls() != 0 {
		t.Errorf("expected no embedding calls, got %d", env.embedder.Calls())
	}
	if n, _ := env.index.Count(ctx); n != 0 {
		t.Errorf("expected empty index, got %d entries", n)
	}
}

func TestIngest_TerminalDocumentIsNoop(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	conv := env.conversation(t, "user-1", domain.ModeDocumentQA)
	doc := env.upload(t, conv, "a.txt", "text/plain", "hello world")

	p := env.pipeline(t, 50, 0)
	if _, err := p.Ingest(ctx, doc.ID); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	calls := env.embedder.Calls()

	result, err := p.Ingest(ctx, doc.ID)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if result.Status != domain.DocumentStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", result.Status)
	}
	if env.embedder.Calls() != calls {
		t.Error("redelivered task must not embed again")
	}
}

func TestIngest_UnknownDocument(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.pipeline(t, 50, 0).Ingest(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestIngest_Failures(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		content     string
		setup       func(env *testEnv)
		wantErr     error
	}{
		{
			name:        "binary content",
			contentType: "application/octet-stream",
			content:     "\x00\x01\x02PDF",
			wantErr:     domain.ErrExtractionFailed,
		},
		{
			name:        "embedding backend down",
			contentType: "text/plain",
			content:     "some text worth indexing",
			setup:       func(env *testEnv) { env.embedder.EmbedFn = mocks.FailingEmbedding() },
			wantErr:     domain.ErrEmbeddingUnavailable,
		},
		{
			name:        "no embedding backend",
			contentType: "text/plain",
			content:     "some text worth indexing",
			setup:       func(env *testEnv) { env.services.SetEmbeddingService(nil) },
			wantErr:     domain.ErrEmbeddingUnavailable,
		},
		{
			name:        "short vector batch",
			contentType: "text/plain",
			content:     "some text worth indexing",
			setup: func(env *testEnv) {
				env.embedder.EmbedFn = func([]string) ([][]float32, error) { return nil, nil }
			},
			wantErr: domain.ErrEmbeddingUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			env := newTestEnv(t)
			conv := env.conversation(t, "user-1", domain.ModeDocumentQA)
			doc := env.upload(t, conv, "f", tt.contentType, tt.content)
			if tt.setup != nil {
				tt.setup(env)
			}

			result, err := env.pipeline(t, 8, 2).Ingest(ctx, doc.ID)
			if err != nil {
				t.Fatalf("document failures are recorded, not returned: %v", err)
			}
			if result.Status != domain.DocumentStatusFailed {
				t.Fatalf("expected FAILED, got %s", result.Status)
			}

			stored, _ := env.documents.Get(ctx, doc.ID)
			if stored.Status != domain.DocumentStatusFailed {
				t.Errorf("expected stored status FAILED, got %s", stored.Status)
			}
			if !strings.Contains(stored.ErrorMessage, tt.wantErr.Error()) {
				t.Errorf("expected error message to mention %q, got %q", tt.wantErr, stored.ErrorMessage)
			}
			if n, _ := env.index.Count(ctx); n != 0 {
				t.Errorf("expected empty index, got %d entries", n)
			}
		})
	}
}

func TestIngest_IndexFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	flaky := &flakyIndex{VectorIndex: env.index, allowed: 2}
	conv := env.conversation(t, "user-1", domain.ModeDocumentQA)
	doc := env.upload(t, conv, "a.txt", "text/plain", "AAAAABBBBBCCCCCDDDDD")

	p := env.pipeline(t, 5, 0)
	p.index = flaky

	result, err := p.Ingest(ctx, doc.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != domain.DocumentStatusFailed {
		t.Fatalf("expected FAILED, got %s", result.Status)
	}
	if !strings.Contains(result.Error, domain.ErrIndexWrite.Error()) {
		t.Errorf("expected index write error, got %q", result.Error)
	}
	if n, _ := env.index.Count(ctx); n != 0 {
		t.Errorf("expected partial entries to be rolled back, got %d", n)
	}
}

func TestIngest_StoredBytesTampered(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	conv := env.conversation(t, "user-1", domain.ModeDocumentQA)
	doc := env.upload(t, conv, "a.txt", "text/plain", "original text")

	// Replace the stored bytes behind the checksum's back.
	_, _ = env.files.Save(ctx, doc.ID, "a.txt", []byte("tampered"))

	result, err := env.pipeline(t, 50, 0).Ingest(ctx, doc.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != domain.DocumentStatusFailed || !strings.Contains(result.Error, domain.ErrStorage.Error()) {
		t.Errorf("expected storage failure, got %+v", result)
	}
}

func TestIngest_DocumentDeletedMidway(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	conv := env.conversation(t, "user-1", domain.ModeDocumentQA)
	doc := env.upload(t, conv, "a.txt", "text/plain", "AAAAABBBBB")

	env.documents.FinishFn = func(d *domain.Document) error {
		_ = env.documents.Delete(ctx, d.ID)
		return nil
	}

	if _, err := env.pipeline(t, 5, 0).Ingest(ctx, doc.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if n, _ := env.index.Count(ctx); n != 0 {
		t.Errorf("expected entries of a deleted document to be removed, got %d", n)
	}
}
