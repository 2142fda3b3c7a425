package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mernjs/rag-pipeline/internal/indexer"
	"github.com/mernjs/rag-pipeline/internal/rag"
	"github.com/mernjs/rag-pipeline/internal/storage"
)

const (
	defaultMaxResults = 5
	maxMaxResults     = 20
	snippetLen        = 300
)

// makeSearchHandler creates the search_docs tool handler.
// Search flow:
// 1. Search chunks (limit * 3 to get enough distinct documents)
// 2. Filter by minimum score and collection
// 3. Deduplicate by parent document, keeping the best chunk
// 4. Attach document summary and timestamp
func makeSearchHandler(lib Library) func(
	context.Context, *mcp.CallToolRequest, SearchDocsInput,
) (*mcp.CallToolResult, SearchDocsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchDocsInput) (
		*mcp.CallToolResult, SearchDocsOutput, error,
	) {
		maxResults := input.MaxResults
		if maxResults <= 0 {
			maxResults = defaultMaxResults
		}
		maxResults = min(maxResults, maxMaxResults)

		chunks, err := lib.Search(ctx, input.Query, maxResults*3)
		if err != nil {
			return nil, SearchDocsOutput{}, fmt.Errorf("search failed: %w", err)
		}

		seen := make(map[string]bool)
		results := make([]SearchResult, 0, maxResults)
		for _, chunk := range chunks {
			if len(results) == maxResults {
				break
			}
			if chunk.Score < input.MinScore || seen[chunk.DocumentID] {
				continue
			}
			if input.Collection != "" && chunk.Collection != input.Collection {
				continue
			}
			// Results are sorted, so the first chunk seen is the document's best.
			seen[chunk.DocumentID] = true

			result := SearchResult{
				DocumentID: chunk.DocumentID,
				Title:      chunk.Title,
				Collection: chunk.Collection,
				Type:       chunk.Type,
				Score:      chunk.Score,
				Snippet:    snippet(chunk.Text),
				Tags:       chunk.Tags,
			}
			if doc, ok := lib.GetDocument(chunk.DocumentID); ok {
				result.Summary = doc.Summary
				result.UpdatedAt = doc.CreatedAt
			}
			if result.Tags == nil {
				result.Tags = []string{}
			}
			results = append(results, result)
		}

		if len(results) == 0 {
			return nil, SearchDocsOutput{
				Results: []SearchResult{},
				Message: "No matching documents found. Try broader search terms.",
			}, nil
		}

		return nil, SearchDocsOutput{Results: results}, nil
	}
}

func snippet(text string) string {
	runes := []rune(text)
	if len(runes) <= snippetLen {
		return text
	}
	return string(runes[:snippetLen]) + "…"
}

// makeFetchHandler creates the fetch_doc tool handler.
// Prepends source header: <!-- Source: title (collection, version) -->
func makeFetchHandler(lib Library) func(
	context.Context, *mcp.CallToolRequest, FetchDocInput,
) (*mcp.CallToolResult, FetchDocOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input FetchDocInput) (
		*mcp.CallToolResult, FetchDocOutput, error,
	) {
		doc, ok := lib.GetDocument(input.ID)
		if !ok {
			return nil, FetchDocOutput{
				ID:    input.ID,
				Found: false,
			}, nil
		}

		content := fmt.Sprintf("<!-- Source: %s (%s, %s) -->\n\n%s", doc.Title, doc.Collection, doc.Version, doc.FullText)

		return nil, FetchDocOutput{
			Content:    content,
			ID:         doc.ID,
			Title:      doc.Title,
			Collection: doc.Collection,
			Version:    doc.Version,
			Summary:    doc.Summary,
			UpdatedAt:  doc.CreatedAt,
			Found:      true,
		}, nil
	}
}

// makeListHandler creates the list_docs tool handler.
func makeListHandler(lib Library) func(
	context.Context, *mcp.CallToolRequest, ListDocsInput,
) (*mcp.CallToolResult, ListDocsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListDocsInput) (
		*mcp.CallToolResult, ListDocsOutput, error,
	) {
		docs := make([]storage.DocumentSummary, 0)
		for _, d := range lib.ListDocuments() {
			if input.Collection != "" && d.Collection != input.Collection {
				continue
			}
			if d.Tags == nil {
				d.Tags = []string{}
			}
			docs = append(docs, d)
		}

		return nil, ListDocsOutput{
			Documents: docs,
			Count:     len(docs),
		}, nil
	}
}

// makeStatusHandler creates the get_index_status tool handler.
// When a seeded collection is configured, its version label (the short commit
// SHA it was built from) is compared with the repository HEAD.
func makeStatusHandler(
	lib Library,
	commits CommitSource,
	seedCollection string,
) func(context.Context, *mcp.CallToolRequest, StatusInput) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		summary := lib.GetStats()
		out := StatusOutput{
			TotalDocs:       summary.TotalDocuments,
			TotalChunks:     summary.TotalChunks,
			IngestionStatus: summary.IngestionStatus,
			LastIngestedAt:  summary.LastIngestedAt,
			Collections:     summary.Collections,
		}

		if commits == nil || seedCollection == "" {
			return nil, out, nil
		}

		out.SourceCommit = seededVersion(lib.ListDocuments(), seedCollection)

		head, err := commits.GetLatestCommitSHA(ctx)
		if err != nil {
			// GitHub being unavailable is not an error for the tool
			return nil, out, nil
		}
		out.HeadCommit = indexer.ShortSHA(head)

		switch {
		case out.SourceCommit == "":
			out.StaleWarning = fmt.Sprintf("Collection %q has not been seeded yet.", seedCollection)
		case out.SourceCommit != out.HeadCommit:
			out.StaleWarning = fmt.Sprintf("Collection %q was built from %s but the repository is at %s. Restart the server to reseed.",
				seedCollection, out.SourceCommit, out.HeadCommit)
		}

		return nil, out, nil
	}
}

// seededVersion returns the version of the newest document in collection.
func seededVersion(docs []storage.DocumentSummary, collection string) string {
	for _, d := range docs {
		if d.Collection == collection {
			return d.Version
		}
	}
	return ""
}

// makeIngestHandler creates the ingest_text tool handler.
func makeIngestHandler(lib Library) func(
	context.Context, *mcp.CallToolRequest, IngestTextInput,
) (*mcp.CallToolResult, IngestTextOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input IngestTextInput) (
		*mcp.CallToolResult, IngestTextOutput, error,
	) {
		res, err := lib.Ingest(ctx, rag.IngestRequest{
			Title:      input.Title,
			Text:       input.Text,
			Collection: input.Collection,
			Tags:       input.Tags,
			Version:    input.Version,
		})
		if err != nil {
			return nil, IngestTextOutput{}, fmt.Errorf("ingest failed: %w", err)
		}
		return nil, IngestTextOutput{DocumentID: res.DocumentID, ChunkCount: res.ChunkCount}, nil
	}
}
