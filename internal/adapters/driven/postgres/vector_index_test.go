package postgres

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
)

var entryColumnNames = []string{"id", "document_id", "text", "embedding", "score"}

func TestVectorIndex_QueryAllowlist(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`FROM index_entries WHERE document_id = ANY\(\$3\) ORDER BY embedding <=> \$1, seq LIMIT \$2`).
		WithArgs(sqlmock.AnyArg(), 3, `{"doc-1","doc-2"}`).
		WillReturnRows(sqlmock.NewRows(entryColumnNames).
			AddRow("doc-2_0", "doc-2", "launch code", "[1,0]", 0.98).
			AddRow("doc-1_4", "doc-1", "weather", "[0,1]", 0.12))

	hits, err := NewVectorIndex(db).Query(t.Context(), []float32{1, 0}, 3,
		&driven.IndexFilter{DocumentIDs: []string{"doc-1", "doc-2"}})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(hits) != 2 || hits[0].Entry.ID != "doc-2_0" || hits[1].Entry.ID != "doc-1_4" {
		t.Fatalf("expected database order to be kept, got %+v", hits)
	}
	if got := hits[0].Entry.Vector; len(got) != 2 || got[0] != 1 {
		t.Errorf("expected decoded vector, got %v", got)
	}
}

func TestVectorIndex_QueryUnfiltered(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`FROM index_entries ORDER BY embedding <=> \$1, seq LIMIT \$2`).
		WithArgs(sqlmock.AnyArg(), 5).
		WillReturnRows(sqlmock.NewRows(entryColumnNames))

	hits, err := NewVectorIndex(db).Query(t.Context(), []float32{1, 0}, 5, nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if hits == nil || len(hits) != 0 {
		t.Errorf("expected empty non-nil result, got %v", hits)
	}
}

func TestVectorIndex_QueryEmptyAllowlistSkipsDatabase(t *testing.T) {
	db, _ := newMockDB(t)

	hits, err := NewVectorIndex(db).Query(t.Context(), []float32{1, 0}, 3, &driven.IndexFilter{})
	if err != nil || len(hits) != 0 {
		t.Errorf("expected empty result, got %v, %v", hits, err)
	}
}

func TestVectorIndex_UpsertKeepsSeqOnConflict(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(`ON CONFLICT \(id\) DO UPDATE SET document_id = EXCLUDED.document_id, text = EXCLUDED.text, embedding = EXCLUDED.embedding`).
		WithArgs("doc-1_0", "doc-1", "hello", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := &domain.IndexEntry{ID: "doc-1_0", DocumentID: "doc-1", Text: "hello", Vector: []float32{1, 0}}
	if err := NewVectorIndex(db).Upsert(t.Context(), entry); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
}

func TestVectorIndex_WriteErrorsAreWrapped(t *testing.T) {
	db, mock := newMockDB(t)
	index := NewVectorIndex(db)

	mock.ExpectExec(`INSERT INTO index_entries`).WillReturnError(errors.New("connection reset"))
	err := index.Upsert(t.Context(), &domain.IndexEntry{ID: "d_0", DocumentID: "d", Vector: []float32{1}})
	if !errors.Is(err, domain.ErrIndexWrite) {
		t.Errorf("expected ErrIndexWrite from Upsert, got %v", err)
	}

	mock.ExpectExec(`DELETE FROM index_entries WHERE document_id = \$1`).
		WithArgs("d").
		WillReturnError(errors.New("connection reset"))
	if err := index.DeleteByDocument(t.Context(), "d"); !errors.Is(err, domain.ErrIndexWrite) {
		t.Errorf("expected ErrIndexWrite from DeleteByDocument, got %v", err)
	}

	if err := index.Upsert(t.Context(), &domain.IndexEntry{ID: "d_1"}); !errors.Is(err, domain.ErrIndexWrite) {
		t.Errorf("expected ErrIndexWrite for an entry without a vector, got %v", err)
	}
}
