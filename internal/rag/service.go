// Package rag ties extraction, chunking, embedding, storage and generation
// into the operations exposed to HTTP and MCP callers.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mernjs/rag-pipeline/internal/chunker"
	"github.com/mernjs/rag-pipeline/internal/embedding"
	"github.com/mernjs/rag-pipeline/internal/extract"
	"github.com/mernjs/rag-pipeline/internal/generation"
	"github.com/mernjs/rag-pipeline/internal/metadata"
	"github.com/mernjs/rag-pipeline/internal/mirror"
	"github.com/mernjs/rag-pipeline/internal/retrieval"
	"github.com/mernjs/rag-pipeline/internal/stats"
	"github.com/mernjs/rag-pipeline/internal/storage"
)

const (
	// DefaultTopK is used when a caller asks for k <= 0 results.
	DefaultTopK = 5

	// DefaultType tags documents ingested as raw text.
	DefaultType = "text"
)

// Extractor turns uploaded bytes into text. *extract.Registry implements it.
type Extractor interface {
	Extract(ctx context.Context, data []byte, mimeType, filename string) (string, extract.Format, error)
}

// Enricher writes a summary and entity list for a document.
type Enricher interface {
	GenerateMetadata(ctx context.Context, title, content string) (*metadata.DocumentMetadata, error)
}

// Mirror receives every stored document for best-effort durable copy.
type Mirror interface {
	Enqueue(doc storage.Document, chunks []storage.Chunk) bool
	Stats() mirror.Stats
}

// IngestRequest is a document given as plain text. An empty ID gets a new UUID.
type IngestRequest struct {
	ID         string   `json:"id,omitempty"`
	Title      string   `json:"title"`
	Collection string   `json:"collection,omitempty"`
	Type       string   `json:"type,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Text       string   `json:"text"`
	Version    string   `json:"version,omitempty"`
}

// FileRequest is a document given as raw file bytes.
type FileRequest struct {
	ID         string
	Filename   string
	MIMEType   string
	Data       []byte
	Title      string
	Collection string
	Tags       []string
	Version    string
}

// IngestResult identifies the stored document.
type IngestResult struct {
	DocumentID string `json:"document_id"`
	ChunkCount int    `json:"chunk_count"`
}

// ChatStream carries the sources used for an answer and the answer itself.
type ChatStream struct {
	Sources []storage.SearchResult
	Deltas  <-chan generation.Delta
}

// Service is safe for concurrent use.
type Service struct {
	store      *storage.MemoryStore
	embedder   embedding.Embedder
	generator  generation.Generator
	chunker    *chunker.Chunker
	extractor  Extractor
	enricher   Enricher
	mirror     Mirror
	retriever  *retrieval.Retriever
	aggregator *stats.Aggregator
	newID      func() string
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithChunker replaces the default chunker.
func WithChunker(c *chunker.Chunker) Option {
	return func(s *Service) {
		s.chunker = c
	}
}

// WithExtractor replaces the default extraction registry.
func WithExtractor(e Extractor) Option {
	return func(s *Service) {
		s.extractor = e
	}
}

// WithEnricher turns on summary and entity enrichment.
func WithEnricher(e Enricher) Option {
	return func(s *Service) {
		s.enricher = e
	}
}

// WithMirror copies every stored document to m.
func WithMirror(m Mirror) Option {
	return func(s *Service) {
		s.mirror = m
	}
}

// WithIDGenerator overrides document id generation.
func WithIDGenerator(f func() string) Option {
	return func(s *Service) {
		s.newID = f
	}
}

// WithClock sets the clock used for freshness summaries.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a Service over store. A nil generator disables Chat.
func NewService(store *storage.MemoryStore, embedder embedding.Embedder, generator generation.Generator, opts ...Option) *Service {
	s := &Service{
		store:     store,
		embedder:  embedder,
		generator: generator,
		chunker:   chunker.New(),
		extractor: extract.NewRegistry(),
		newID:     uuid.NewString,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.retriever = retrieval.NewRetriever(store)
	s.aggregator = stats.NewAggregator(store, s.now)
	return s
}

// Ingest chunks and embeds req.Text, then stores the document and its chunks
// in one step. Nothing is stored when validation or embedding fails.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (IngestResult, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return IngestResult{}, &ValidationError{Field: "title", Reason: "is required"}
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return IngestResult{}, &ValidationError{Field: "text", Reason: "is required"}
	}

	pieces := s.chunker.Split(text)
	if len(pieces) == 0 {
		return IngestResult{}, &ValidationError{Field: "text", Reason: "produced no chunks"}
	}

	vectors, err := s.embedder.EmbedBatch(ctx, pieces)
	if err != nil {
		return IngestResult{}, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(pieces) {
		return IngestResult{}, &embedding.ProviderError{
			Op:  "batch",
			Err: fmt.Errorf("got %d embeddings for %d chunks", len(vectors), len(pieces)),
		}
	}

	id := req.ID
	if id == "" {
		id = s.newID()
	}
	docType := strings.TrimSpace(req.Type)
	if docType == "" {
		docType = DefaultType
	}

	doc := storage.Document{
		ID:         id,
		Title:      title,
		Type:       docType,
		Collection: strings.TrimSpace(req.Collection),
		Tags:       req.Tags,
		FullText:   text,
		Version:    strings.TrimSpace(req.Version),
	}
	s.enrich(ctx, &doc)

	chunks := make([]storage.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = storage.Chunk{
			ID:          storage.ChunkID(id, i),
			ParentDocID: id,
			Index:       i,
			Text:        piece,
			Embedding:   vectors[i],
		}
	}

	stored := s.store.Upsert(doc, chunks)
	if s.mirror != nil {
		s.mirror.Enqueue(stored, chunks)
	}

	s.logger.Info("ingested document",
		"document_id", id,
		"collection", stored.Collection,
		"type", stored.Type,
		"chunks", len(chunks),
	)
	return IngestResult{DocumentID: id, ChunkCount: len(chunks)}, nil
}

// enrich fills the summary, and the tags when the caller gave none.
// Failures leave the document as it was.
func (s *Service) enrich(ctx context.Context, doc *storage.Document) {
	if s.enricher == nil {
		return
	}
	meta, err := s.enricher.GenerateMetadata(ctx, doc.Title, doc.FullText)
	if err != nil {
		s.logger.Warn("metadata generation failed, continuing without", "document_id", doc.ID, "error", err)
		return
	}
	doc.Summary = meta.Summary
	if len(storage.NormalizeTags(doc.Tags)) == 0 {
		doc.Tags = meta.Entities
	}
}

// IngestFile extracts text from req.Data and ingests it. The title defaults
// to one found in the file, then to the filename.
func (s *Service) IngestFile(ctx context.Context, req FileRequest) (IngestResult, error) {
	text, format, err := s.extractor.Extract(ctx, req.Data, req.MIMEType, req.Filename)
	if err != nil {
		return IngestResult{}, fmt.Errorf("extract %s: %w", req.Filename, err)
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = extract.Title(req.Data, format, req.Filename)
	}

	return s.Ingest(ctx, IngestRequest{
		ID:         req.ID,
		Title:      title,
		Collection: req.Collection,
		Type:       string(format),
		Tags:       req.Tags,
		Text:       text,
		Version:    req.Version,
	})
}

// Search embeds query and returns the k best chunks. k <= 0 uses DefaultTopK.
func (s *Service) Search(ctx context.Context, query string, k int) ([]storage.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &ValidationError{Field: "query", Reason: "is required"}
	}
	if k <= 0 {
		k = DefaultTopK
	}

	vector, err := s.embedder.Embed(ctx, retrieval.TruncateQuery(query))
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return s.retriever.Retrieve(ctx, vector, k)
}

// Chat retrieves context for the latest user turn of history and starts
// streaming an answer. The stream ends when ctx is cancelled.
func (s *Service) Chat(ctx context.Context, history []retrieval.Message, k int) (ChatStream, error) {
	if s.generator == nil {
		return ChatStream{}, fmt.Errorf("chat: no generator configured")
	}
	query, ok := retrieval.LatestUserQuery(history)
	if !ok {
		return ChatStream{}, &ValidationError{Field: "messages", Reason: retrieval.ErrNoUserTurn.Error()}
	}

	sources, err := s.Search(ctx, query, k)
	if err != nil {
		return ChatStream{}, err
	}

	prompt, err := retrieval.BuildPrompt(history, sources)
	if err != nil {
		return ChatStream{}, fmt.Errorf("build prompt: %w", err)
	}

	s.logger.Debug("starting chat", "sources", len(sources), "turns", len(history))
	return ChatStream{
		Sources: sources,
		Deltas:  s.generator.Stream(ctx, prompt),
	}, nil
}

// GetDocument returns the stored document with id.
func (s *Service) GetDocument(id string) (storage.Document, bool) {
	return s.store.GetDocument(id)
}

// ListDocuments returns summaries of every document, newest first.
func (s *Service) ListDocuments() []storage.DocumentSummary {
	return s.store.ListDocuments()
}

// GetStats returns freshness and version summaries per collection.
func (s *Service) GetStats() stats.Summary {
	return s.aggregator.Summary()
}

// Counts returns document counts by collection and type.
func (s *Service) Counts() storage.Counts {
	return s.store.Stats()
}

// MirrorStats reports mirror counters, and false when no mirror is configured.
func (s *Service) MirrorStats() (mirror.Stats, bool) {
	if s.mirror == nil {
		return mirror.Stats{}, false
	}
	return s.mirror.Stats(), true
}
