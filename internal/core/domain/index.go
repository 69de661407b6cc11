package domain

import "fmt"

// IndexEntry is one embedded chunk stored in the vector index.
type IndexEntry struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Vector     []float32 `json:"vector"`
	Text       string    `json:"text"`
}

// EntryID derives the deterministic index key for a document chunk.
func EntryID(documentID string, chunkIndex int) string {
	return fmt.Sprintf("%s_%d", documentID, chunkIndex)
}

// NewIndexEntry builds the entry for an embedded chunk.
func NewIndexEntry(chunk Chunk, vector []float32) *IndexEntry {
	return &IndexEntry{
		ID:         EntryID(chunk.DocumentID, chunk.Index),
		DocumentID: chunk.DocumentID,
		Vector:     vector,
		Text:       chunk.Text,
	}
}

// ScoredEntry is a query hit with its cosine similarity.
type ScoredEntry struct {
	Entry *IndexEntry `json:"entry"`
	Score float64     `json:"score"`
}
