package vespa

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.VectorIndex = (*VectorIndex)(nil)

const (
	namespace = "sercha"
	docType   = "entry"
	cluster   = "sercha"
)

// VectorIndex implements driven.VectorIndex on a Vespa application that
// carries the entry schema from schemas/entry.sd.tmpl. Query hits carry
// no vectors; only the summary fields come back.
type VectorIndex struct {
	baseURL    string
	httpClient *http.Client
}

// NewVectorIndex creates a Vespa-backed index
func NewVectorIndex(cfg Config) (*VectorIndex, error) {
	base, err := validateEndpoint(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	return &VectorIndex{
		baseURL:    base,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type entryFields struct {
	EntryID    string        `json:"entry_id"`
	DocumentID string        `json:"document_id"`
	Text       string        `json:"text"`
	Seq        int64         `json:"seq"`
	Embedding  *tensorValues `json:"embedding,omitempty"`
}

type tensorValues struct {
	Values []float32 `json:"values"`
}

type entryDocument struct {
	Fields entryFields `json:"fields"`
}

type searchResponse struct {
	Root struct {
		Fields struct {
			TotalCount int64 `json:"totalCount"`
		} `json:"fields"`
		Children []struct {
			Relevance float64     `json:"relevance"`
			Fields    entryFields `json:"fields"`
		} `json:"children"`
	} `json:"root"`
}

type visitResponse struct {
	Continuation string `json:"continuation"`
}

func (v *VectorIndex) docURL(id string) string {
	return fmt.Sprintf("%s/document/v1/%s/%s/docid/%s", v.baseURL, namespace, docType, url.PathEscape(id))
}

// Upsert writes the entry, reusing the stored seq when the ID already exists.
func (v *VectorIndex) Upsert(ctx context.Context, entry *domain.IndexEntry) error {
	if entry == nil || entry.ID == "" || len(entry.Vector) == 0 {
		return fmt.Errorf("%w: entry requires an id and a vector", domain.ErrIndexWrite)
	}

	seq := time.Now().UnixNano()
	var existing entryDocument
	err := doJSON(ctx, v.httpClient, http.MethodGet, v.docURL(entry.ID), nil, &existing)
	switch {
	case err == nil:
		seq = existing.Fields.Seq
	case !errors.Is(err, errNotFound):
		return fmt.Errorf("%w: %v", domain.ErrIndexWrite, err)
	}

	doc := entryDocument{Fields: entryFields{
		EntryID:    entry.ID,
		DocumentID: entry.DocumentID,
		Text:       entry.Text,
		Seq:        seq,
		Embedding:  &tensorValues{Values: entry.Vector},
	}}
	if err := doJSON(ctx, v.httpClient, http.MethodPost, v.docURL(entry.ID), doc, nil); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIndexWrite, err)
	}
	return nil
}

// Query runs a nearestNeighbor search ranked by the cosine profile
func (v *VectorIndex) Query(ctx context.Context, vector []float32, topK int, filter *driven.IndexFilter) ([]*domain.ScoredEntry, error) {
	results := []*domain.ScoredEntry{}
	if topK <= 0 || (filter != nil && len(filter.DocumentIDs) == 0) {
		return results, nil
	}

	req := map[string]any{
		"yql":             buildYQL(topK, filter),
		"hits":            topK,
		"ranking.profile": "cosine",
		"input.query(q)":  vector,
	}

	var resp searchResponse
	if err := doJSON(ctx, v.httpClient, http.MethodPost, v.baseURL+"/search/", req, &resp); err != nil {
		return nil, fmt.Errorf("vespa query: %w", err)
	}

	seqs := make(map[string]int64, len(resp.Root.Children))
	for _, hit := range resp.Root.Children {
		results = append(results, &domain.ScoredEntry{
			Entry: &domain.IndexEntry{
				ID:         hit.Fields.EntryID,
				DocumentID: hit.Fields.DocumentID,
				Text:       hit.Fields.Text,
			},
			Score: hit.Relevance,
		})
		seqs[hit.Fields.EntryID] = hit.Fields.Seq
	}

	// Vespa does not order equal relevance deterministically
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return seqs[results[i].Entry.ID] < seqs[results[j].Entry.ID]
	})
	return results, nil
}

func buildYQL(topK int, filter *driven.IndexFilter) string {
	yql := fmt.Sprintf("select * from %s where ({targetHits:%d}nearestNeighbor(embedding,q))", docType, topK)
	if filter == nil {
		return yql
	}
	quoted := make([]string, len(filter.DocumentIDs))
	for i, id := range filter.DocumentIDs {
		quoted[i] = strconv.Quote(id)
	}
	return yql + " and document_id in (" + strings.Join(quoted, ", ") + ")"
}

// DeleteByDocument removes every entry of a document with a selection
// delete, following continuation tokens until the visit completes.
func (v *VectorIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	params := url.Values{}
	params.Set("selection", fmt.Sprintf("%s.document_id==%s", docType, strconv.Quote(documentID)))
	params.Set("cluster", cluster)

	for {
		var resp visitResponse
		endpoint := fmt.Sprintf("%s/document/v1/%s/%s/docid/?%s", v.baseURL, namespace, docType, params.Encode())
		if err := doJSON(ctx, v.httpClient, http.MethodDelete, endpoint, nil, &resp); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrIndexWrite, err)
		}
		if resp.Continuation == "" {
			return nil
		}
		params.Set("continuation", resp.Continuation)
	}
}

// Count returns the total number of stored entries
func (v *VectorIndex) Count(ctx context.Context) (int, error) {
	req := map[string]any{
		"yql":  "select * from " + docType + " where true",
		"hits": 0,
	}
	var resp searchResponse
	if err := doJSON(ctx, v.httpClient, http.MethodPost, v.baseURL+"/search/", req, &resp); err != nil {
		return 0, fmt.Errorf("vespa count: %w", err)
	}
	return int(resp.Root.Fields.TotalCount), nil
}

// Ping checks the container health endpoint
func (v *VectorIndex) Ping(ctx context.Context) error {
	if err := doJSON(ctx, v.httpClient, http.MethodGet, v.baseURL+"/state/v1/health", nil, nil); err != nil {
		return fmt.Errorf("vespa unhealthy: %w", err)
	}
	return nil
}
