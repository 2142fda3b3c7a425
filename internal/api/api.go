// Package api serves the document library over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mernjs/rag-pipeline/internal/mirror"
	"github.com/mernjs/rag-pipeline/internal/rag"
	"github.com/mernjs/rag-pipeline/internal/retrieval"
	"github.com/mernjs/rag-pipeline/internal/stats"
	"github.com/mernjs/rag-pipeline/internal/storage"
)

// Library is the service behind the handlers. *rag.Service implements it.
type Library interface {
	Ingest(ctx context.Context, req rag.IngestRequest) (rag.IngestResult, error)
	IngestFile(ctx context.Context, req rag.FileRequest) (rag.IngestResult, error)
	Search(ctx context.Context, query string, k int) ([]storage.SearchResult, error)
	Chat(ctx context.Context, history []retrieval.Message, k int) (rag.ChatStream, error)
	GetDocument(id string) (storage.Document, bool)
	ListDocuments() []storage.DocumentSummary
	GetStats() stats.Summary
	Counts() storage.Counts
	MirrorStats() (mirror.Stats, bool)
}

// Config holds handler dependencies.
type Config struct {
	Library Library
	// Mirror is checked by /health when set.
	Mirror HealthChecker
	// MCP is mounted at /mcp when set.
	MCP            http.Handler
	TopK           int
	MaxUploadBytes int64
	Logger         *slog.Logger
}

// Handler routes API requests.
type Handler struct {
	lib            Library
	topK           int
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewRouter builds the HTTP routes: the JSON API, /health, /mcp and the landing page.
func NewRouter(cfg Config) http.Handler {
	h := &Handler{
		lib:            cfg.Library,
		topK:           cfg.TopK,
		maxUploadBytes: cfg.MaxUploadBytes,
		logger:         cfg.Logger,
	}
	if h.topK <= 0 {
		h.topK = rag.DefaultTopK
	}
	if h.maxUploadBytes <= 0 {
		h.maxUploadBytes = 32 << 20
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/documents", h.handleIngest)
	mux.HandleFunc("GET /api/documents", h.handleListDocuments)
	mux.HandleFunc("GET /api/documents/{id}", h.handleGetDocument)
	mux.HandleFunc("GET /api/search", h.handleSearch)
	mux.HandleFunc("GET /api/stats", h.handleStats)
	mux.HandleFunc("POST /api/chat", h.handleChat)
	mux.HandleFunc("GET /health", NewHealthHandler(cfg.Library, cfg.Mirror))
	if cfg.MCP != nil {
		mux.Handle("/mcp", cfg.MCP)
	}
	mux.HandleFunc("GET /{$}", NewLandingHandler(cfg.MCP != nil))
	return mux
}
