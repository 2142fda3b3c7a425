package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mernjs/rag-pipeline/internal/rag"
	"github.com/mernjs/rag-pipeline/internal/stats"
	"github.com/mernjs/rag-pipeline/internal/storage"
)

// Library is the document library served by the tools. *rag.Service implements it.
type Library interface {
	Search(ctx context.Context, query string, k int) ([]storage.SearchResult, error)
	GetDocument(id string) (storage.Document, bool)
	ListDocuments() []storage.DocumentSummary
	GetStats() stats.Summary
	Ingest(ctx context.Context, req rag.IngestRequest) (rag.IngestResult, error)
}

// CommitSource reports the newest commit of a seeded repository.
type CommitSource interface {
	GetLatestCommitSHA(ctx context.Context) (string, error)
}

// Server wraps the MCP server with dependencies.
type Server struct {
	server *mcp.Server
}

// Config holds server dependencies.
type Config struct {
	Library Library
	// Commits and SeedCollection are set when a collection is seeded from
	// GitHub; get_index_status then compares the seeded version with HEAD.
	Commits        CommitSource
	SeedCollection string
	Version        string
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "v0.1.0"
	}
	impl := &mcp.Implementation{
		Name:    "rag-pipeline",
		Version: version,
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_docs",
		Description: "Search the document library semantically. Returns the best matching documents with a snippet of the matching text. Use fetch_doc to get full content.",
	}, makeSearchHandler(cfg.Library))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "fetch_doc",
		Description: "Retrieve a document by id. Returns its full extracted text.",
	}, makeFetchHandler(cfg.Library))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_docs",
		Description: "List the documents in the library, newest first, optionally for one collection.",
	}, makeListHandler(cfg.Library))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_index_status",
		Description: "Get document and chunk counts, per-collection freshness and, for a collection seeded from GitHub, whether it is behind the repository.",
	}, makeStatusHandler(cfg.Library, cfg.Commits, cfg.SeedCollection))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ingest_text",
		Description: "Add a plain-text document to the library. It is chunked, embedded and searchable immediately.",
	}, makeIngestHandler(cfg.Library))

	return &Server{server: server}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
