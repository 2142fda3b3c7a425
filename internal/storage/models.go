package storage

import (
	"strconv"
	"time"
)

const (
	// DefaultCollection is assigned to documents ingested without a collection label.
	DefaultCollection = "uncategorized"

	// DefaultVersion is assigned to documents ingested without a version label.
	DefaultVersion = "v1.0"
)

// Document is a single ingested source with its full text.
// Documents have no embedding vector - they exist for metadata and full-content retrieval.
type Document struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Type       string    `json:"type"`       // Format tag: "pdf", "markdown", ...
	Collection string    `json:"collection"` // Grouping label used for freshness reporting
	Tags       []string  `json:"tags"`
	FullText   string    `json:"full_text"`
	Version    string    `json:"version"`
	Summary    string    `json:"summary,omitempty"` // LLM-generated, empty when enrichment is off
	CreatedAt  time.Time `json:"created_at"`        // Stamped by the store on upsert
}

// Chunk is a bounded span of a document's text with an embedding vector.
// ParentDocID is a lookup key, not an owning reference: the parent may be absent.
type Chunk struct {
	ID          string    `json:"id"` // "<parent id>:<ordinal>"
	ParentDocID string    `json:"parent_doc_id"`
	Index       int       `json:"index"`
	Text        string    `json:"text"`
	Embedding   []float32 `json:"-"`
}

// SearchResult is a chunk match enriched with its parent's display fields.
type SearchResult struct {
	ChunkID    string   `json:"chunk_id"`
	DocumentID string   `json:"document_id"`
	Text       string   `json:"text"`
	Score      float64  `json:"score"`
	Title      string   `json:"title"`
	Type       string   `json:"type"`
	Collection string   `json:"collection"`
	Tags       []string `json:"tags"`
}

// DocumentSummary is the listing view of a document.
type DocumentSummary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Type       string    `json:"type"`
	Collection string    `json:"collection"`
	Tags       []string  `json:"tags"`
	Version    string    `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	ChunkCount int       `json:"chunk_count"`
	Size       int       `json:"size"` // Length of FullText
}

// Counts groups document counts by collection and by type.
type Counts struct {
	TotalDocuments int            `json:"total_documents"`
	TotalChunks    int            `json:"total_chunks"`
	ByCollection   map[string]int `json:"by_collection"`
	ByType         map[string]int `json:"by_type"`
}

// ChunkID derives a chunk identifier from its parent document and ordinal.
func ChunkID(parentID string, index int) string {
	return parentID + ":" + strconv.Itoa(index)
}
