// Package mcp exposes the document library as Model Context Protocol tools.
package mcp

import (
	"time"

	"github.com/mernjs/rag-pipeline/internal/stats"
	"github.com/mernjs/rag-pipeline/internal/storage"
)

// SearchDocsInput defines the input parameters for the search_docs tool.
type SearchDocsInput struct {
	Query      string  `json:"query" jsonschema:"the semantic search query for finding relevant documents"`
	MaxResults int     `json:"max_results,omitempty" jsonschema:"maximum number of documents to return (default 5, at most 20)"`
	MinScore   float64 `json:"min_score,omitempty" jsonschema:"minimum relevance score between 0 and 1 (default 0)"`
	Collection string  `json:"collection,omitempty" jsonschema:"only return documents from this collection"`
}

// SearchDocsOutput contains the search results.
type SearchDocsOutput struct {
	Results []SearchResult `json:"results"`
	// Message provides informational context (e.g., "No matching documents found").
	Message string `json:"message,omitempty"`
}

// SearchResult is one matching document, scored by its best chunk.
type SearchResult struct {
	DocumentID string    `json:"document_id"`
	Title      string    `json:"title"`
	Collection string    `json:"collection"`
	Type       string    `json:"type"`
	Score      float64   `json:"score"`
	Snippet    string    `json:"snippet"`
	Summary    string    `json:"summary,omitempty"`
	Tags       []string  `json:"tags"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// FetchDocInput defines the input parameters for the fetch_doc tool.
type FetchDocInput struct {
	ID string `json:"id" jsonschema:"the document id returned by search_docs or list_docs"`
}

// FetchDocOutput contains the retrieved document.
type FetchDocOutput struct {
	// Content is the full text with a source header prepended.
	Content    string    `json:"content"`
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Collection string    `json:"collection"`
	Version    string    `json:"version"`
	Summary    string    `json:"summary,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
	Found      bool      `json:"found"`
}

// ListDocsInput defines the input parameters for the list_docs tool.
type ListDocsInput struct {
	Collection string `json:"collection,omitempty" jsonschema:"only list documents from this collection"`
}

// ListDocsOutput lists stored documents, newest first.
type ListDocsOutput struct {
	Documents []storage.DocumentSummary `json:"documents"`
	Count     int                       `json:"count"`
}

// StatusInput takes no parameters.
type StatusInput struct{}

// StatusOutput reports index size and freshness.
type StatusOutput struct {
	TotalDocs       int                 `json:"total_docs"`
	TotalChunks     int                 `json:"total_chunks"`
	IngestionStatus string              `json:"ingestion_status"`
	LastIngestedAt  *time.Time          `json:"last_ingested_at,omitempty"`
	Collections     []stats.DatasetCard `json:"collections"`
	SourceCommit    string              `json:"source_commit,omitempty"`
	HeadCommit      string              `json:"head_commit,omitempty"`
	StaleWarning    string              `json:"stale_warning,omitempty"`
}

// IngestTextInput defines the input parameters for the ingest_text tool.
type IngestTextInput struct {
	Title      string   `json:"title" jsonschema:"document title"`
	Text       string   `json:"text" jsonschema:"full document text"`
	Collection string   `json:"collection,omitempty" jsonschema:"collection to file the document under (default uncategorized)"`
	Tags       []string `json:"tags,omitempty" jsonschema:"free-form tags"`
	Version    string   `json:"version,omitempty" jsonschema:"version label (default v1.0)"`
}

// IngestTextOutput identifies the stored document.
type IngestTextOutput struct {
	DocumentID string `json:"document_id"`
	ChunkCount int    `json:"chunk_count"`
}
