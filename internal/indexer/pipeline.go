// Package indexer seeds a collection from a GitHub documentation directory.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/mernjs/rag-pipeline/internal/github"
	"github.com/mernjs/rag-pipeline/internal/rag"
)

// shortSHALen is the length of the commit label used as document version.
const shortSHALen = 7

// docNamespace scopes document ids derived from repository paths.
var docNamespace = uuid.MustParse("2f0b7c1e-9a34-4c5d-8e61-3b9d6a7f4e20")

// IndexResult contains statistics about an indexing operation.
type IndexResult struct {
	TotalDocs      int
	TotalChunks    int
	SuccessfulDocs int
	FailedDocs     []FailedDoc
	CommitSHA      string
	Duration       time.Duration
}

// FailedDoc represents a document that failed to index.
type FailedDoc struct {
	Path   string
	Reason string
}

// Source lists and fetches files from a repository. *github.Fetcher implements it.
type Source interface {
	Repository() string
	ListDocs(ctx context.Context) ([]string, error)
	FetchDoc(ctx context.Context, relativePath string) (*github.FetchedDoc, error)
	GetLatestCommitSHA(ctx context.Context) (string, error)
}

// Ingester stores one file. *rag.Service implements it.
type Ingester interface {
	IngestFile(ctx context.Context, req rag.FileRequest) (rag.IngestResult, error)
}

// Pipeline fetches every file from a Source and ingests it into one collection.
type Pipeline struct {
	source     Source
	ingester   Ingester
	collection string
	logger     *slog.Logger
}

// NewPipeline creates a new indexing pipeline with the given components.
func NewPipeline(source Source, ingester Ingester, collection string, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		source:     source,
		ingester:   ingester,
		collection: collection,
		logger:     logger,
	}
}

// IndexAll fetches all documents and ingests them, labelled with the short
// commit SHA. Documents that fail are reported in the result, not as an error.
func (p *Pipeline) IndexAll(ctx context.Context) (*IndexResult, error) {
	start := time.Now()
	result := &IndexResult{}

	commitSHA, err := p.source.GetLatestCommitSHA(ctx)
	if err != nil {
		return nil, fmt.Errorf("get commit SHA: %w", err)
	}
	result.CommitSHA = commitSHA
	p.logger.Info("Starting indexing", "repository", p.source.Repository(), "commit", commitSHA)

	paths, err := p.source.ListDocs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list docs: %w", err)
	}
	result.TotalDocs = len(paths)
	p.logger.Info("Found documents", "count", len(paths))

	version := ShortSHA(commitSHA)
	for _, docPath := range paths {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		chunks, err := p.processDocument(ctx, docPath, version)
		if err != nil {
			p.logger.Warn("Failed to process document", "path", docPath, "error", err)
			result.FailedDocs = append(result.FailedDocs, FailedDoc{
				Path:   docPath,
				Reason: err.Error(),
			})
			continue
		}
		result.SuccessfulDocs++
		result.TotalChunks += chunks
	}

	result.Duration = time.Since(start)
	p.logger.Info("Indexing complete",
		"successful", result.SuccessfulDocs,
		"failed", len(result.FailedDocs),
		"chunks", result.TotalChunks,
		"duration", result.Duration,
	)

	return result, nil
}

// processDocument fetches and ingests one file, returning its chunk count.
func (p *Pipeline) processDocument(ctx context.Context, docPath, version string) (int, error) {
	fetched, err := p.source.FetchDoc(ctx, docPath)
	if err != nil {
		return 0, fmt.Errorf("fetch: %w", err)
	}
	p.logger.Debug("Fetched document", "path", docPath, "size", len(fetched.Content))

	res, err := p.ingester.IngestFile(ctx, rag.FileRequest{
		ID:         DocumentID(p.source.Repository(), docPath),
		Filename:   path.Base(docPath),
		Data:       fetched.Content,
		Collection: p.collection,
		Tags:       []string{p.source.Repository()},
		Version:    version,
	})
	if err != nil {
		return 0, fmt.Errorf("ingest: %w", err)
	}

	p.logger.Info("Indexed document", "path", docPath, "document_id", res.DocumentID, "chunks", res.ChunkCount)
	return res.ChunkCount, nil
}

// DocumentID derives a stable id so re-seeding replaces earlier copies.
func DocumentID(repository, docPath string) string {
	return uuid.NewSHA1(docNamespace, []byte(repository+"/"+docPath)).String()
}

// ShortSHA returns the first seven characters of a commit SHA.
func ShortSHA(sha string) string {
	if len(sha) > shortSHALen {
		return sha[:shortSHALen]
	}
	return sha
}
