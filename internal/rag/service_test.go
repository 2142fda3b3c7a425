package rag

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

// fakeEmbedder maps known texts to fixed vectors and everything else to [1,1].
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (f *fakeEmbedder) vector(text string) []float32 {
	if v, ok := f.vectors[text]; ok {
		return v
	}
	return []float32{1, 1}
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vector(text), nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = f.vector(text)
	}
	return out, nil
}

type fakeGenerator struct {
	got []retrieval.Message
}

func (f *fakeGenerator) Stream(_ context.Context, messages []retrieval.Message) <-chan generation.Delta {
	f.got = messages
	ch := make(chan generation.Delta, 2)
	ch <- generation.Delta{Text: "Refunds take "}
	ch <- generation.Delta{Text: "five days [1]."}
	close(ch)
	return ch
}

type fakeMirror struct {
	mu   sync.Mutex
	docs []storage.Document
}

func (f *fakeMirror) Enqueue(doc storage.Document, _ []storage.Chunk) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = append(f.docs, doc)
	return true
}

func (f *fakeMirror) Stats() mirror.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return mirror.Stats{Written: int64(len(f.docs))}
}

type fakeEnricher struct {
	meta *metadata.DocumentMetadata
	err  error
}

func (f *fakeEnricher) GenerateMetadata(context.Context, string, string) (*metadata.DocumentMetadata, error) {
	return f.meta, f.err
}

func sequentialIDs() func() string {
	ids := []string{"doc-1", "doc-2", "doc-3", "doc-4"}
	i := 0
	return func() string {
		id := ids[i]
		i++
		return id
	}
}

func newTestService(emb *fakeEmbedder, opts ...Option) (*Service, *storage.MemoryStore) {
	store := storage.NewMemoryStore()
	opts = append([]Option{
		WithIDGenerator(sequentialIDs()),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	return NewService(store, emb, &fakeGenerator{}, opts...), store
}

func TestIngestSplitsAndStores(t *testing.T) {
	svc, store := newTestService(&fakeEmbedder{})

	res, err := svc.Ingest(context.Background(), IngestRequest{
		Title: "Notes",
		Text:  "Para one sentence. Another sentence.\n\nPara two.",
		Tags:  []string{" a ", "a", "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, IngestResult{DocumentID: "doc-1", ChunkCount: 2}, res)

	doc, ok := store.GetDocument("doc-1")
	require.True(t, ok)
	assert.Equal(t, "Notes", doc.Title)
	assert.Equal(t, DefaultType, doc.Type)
	assert.Equal(t, storage.DefaultCollection, doc.Collection)
	assert.Equal(t, storage.DefaultVersion, doc.Version)
	assert.Equal(t, []string{"a", "b"}, doc.Tags)
	assert.False(t, doc.CreatedAt.IsZero())

	_, chunks := store.Len()
	assert.Equal(t, 2, chunks)
}

func TestIngestValidation(t *testing.T) {
	tests := []struct {
		name  string
		req   IngestRequest
		field string
	}{
		{"missing title", IngestRequest{Text: "Some text here."}, "title"},
		{"blank title", IngestRequest{Title: "  ", Text: "Some text here."}, "title"},
		{"missing text", IngestRequest{Title: "T"}, "text"},
		{"whitespace text", IngestRequest{Title: "T", Text: "\n\n  \n"}, "text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb := &fakeEmbedder{}
			svc, store := newTestService(emb)

			_, err := svc.Ingest(context.Background(), tt.req)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Zero(t, emb.calls)
			docs, _ := store.Len()
			assert.Zero(t, docs)
		})
	}
}

func TestIngestNoChunks(t *testing.T) {
	svc, _ := newTestService(&fakeEmbedder{})

	// One paragraph over the limit made of sentences shorter than the minimum.
	text := "Tiny one. Tiny two. Tiny three."
	svc.chunker = chunker.New(chunker.WithMaxLen(10))

	_, err := svc.Ingest(context.Background(), IngestRequest{Title: "T", Text: text})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "text", verr.Field)
}

func TestIngestEmbeddingFailureLeavesStoreUnchanged(t *testing.T) {
	providerErr := &embedding.ProviderError{Op: "batch 0-1", Err: errors.New("401 unauthorized")}
	m := &fakeMirror{}
	svc, store := newTestService(&fakeEmbedder{err: providerErr}, WithMirror(m))

	_, err := svc.Ingest(context.Background(), IngestRequest{Title: "T", Text: "Some text here."})

	var perr *embedding.ProviderError
	require.ErrorAs(t, err, &perr)
	docs, chunks := store.Len()
	assert.Zero(t, docs)
	assert.Zero(t, chunks)
	assert.Empty(t, m.docs)
}

func TestIngestMirrorsStoredDocument(t *testing.T) {
	m := &fakeMirror{}
	svc, _ := newTestService(&fakeEmbedder{}, WithMirror(m))

	_, err := svc.Ingest(context.Background(), IngestRequest{Title: "T", Text: "Some text here.", Collection: "hr"})
	require.NoError(t, err)

	require.Len(t, m.docs, 1)
	assert.Equal(t, "hr", m.docs[0].Collection)
	assert.False(t, m.docs[0].CreatedAt.IsZero())

	st, ok := svc.MirrorStats()
	assert.True(t, ok)
	assert.Equal(t, int64(1), st.Written)
}

func TestIngestEnrichment(t *testing.T) {
	enricher := &fakeEnricher{meta: &metadata.DocumentMetadata{
		Summary:  "About refunds.",
		Entities: []string{"Refunds", "Finance"},
	}}
	svc, store := newTestService(&fakeEmbedder{}, WithEnricher(enricher))

	_, err := svc.Ingest(context.Background(), IngestRequest{Title: "T", Text: "Refunds take five days."})
	require.NoError(t, err)
	_, err = svc.Ingest(context.Background(), IngestRequest{Title: "U", Text: "Refunds take five days.", Tags: []string{"policy"}})
	require.NoError(t, err)

	first, _ := store.GetDocument("doc-1")
	assert.Equal(t, "About refunds.", first.Summary)
	assert.Equal(t, []string{"Refunds", "Finance"}, first.Tags)

	second, _ := store.GetDocument("doc-2")
	assert.Equal(t, []string{"policy"}, second.Tags)
}

func TestIngestEnrichmentFailureIsIgnored(t *testing.T) {
	svc, store := newTestService(&fakeEmbedder{}, WithEnricher(&fakeEnricher{err: errors.New("rate limited")}))

	_, err := svc.Ingest(context.Background(), IngestRequest{Title: "T", Text: "Refunds take five days."})
	require.NoError(t, err)

	doc, ok := store.GetDocument("doc-1")
	require.True(t, ok)
	assert.Empty(t, doc.Summary)
}

func TestIngestFile(t *testing.T) {
	svc, store := newTestService(&fakeEmbedder{})

	res, err := svc.IngestFile(context.Background(), FileRequest{
		Filename: "refund_policy.md",
		Data:     []byte("# Refund Policy\n\nRefunds take five days."),
	})
	require.NoError(t, err)

	doc, ok := store.GetDocument(res.DocumentID)
	require.True(t, ok)
	assert.Equal(t, "Refund Policy", doc.Title)
	assert.Equal(t, string(extract.Markdown), doc.Type)
	assert.Contains(t, doc.FullText, "Refunds take five days.")
}

func TestIngestFileUnsupported(t *testing.T) {
	emb := &fakeEmbedder{}
	svc, _ := newTestService(emb)

	_, err := svc.IngestFile(context.Background(), FileRequest{Filename: "photo.png", Data: []byte{0x89, 'P', 'N', 'G'}})

	assert.ErrorIs(t, err, extract.ErrUnsupportedFormat)
	assert.Zero(t, emb.calls)
}

func TestSearchRanksByCosine(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"Alpha document text.": {1, 0},
		"Beta document text.":  {0, 1},
		"alpha":                {1, 0},
	}}
	svc, _ := newTestService(emb)

	_, err := svc.Ingest(context.Background(), IngestRequest{Title: "A", Text: "Alpha document text."})
	require.NoError(t, err)
	_, err = svc.Ingest(context.Background(), IngestRequest{Title: "B", Text: "Beta document text."})
	require.NoError(t, err)

	results, err := svc.Search(context.Background(), "alpha", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "doc-1", results[0].DocumentID)
	assert.Equal(t, "A", results[0].Title)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, "doc-2", results[1].DocumentID)
	assert.InDelta(t, 0.0, results[1].Score, 1e-6)
}

func TestSearchEmptyStore(t *testing.T) {
	svc, _ := newTestService(&fakeEmbedder{})

	results, err := svc.Search(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestSearchErrors(t *testing.T) {
	svc, _ := newTestService(&fakeEmbedder{})
	_, err := svc.Search(context.Background(), "   ", 5)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	failing, _ := newTestService(&fakeEmbedder{err: &embedding.ProviderError{Op: "embed", Err: errors.New("boom")}})
	_, err = failing.Search(context.Background(), "q", 5)
	var perr *embedding.ProviderError
	assert.ErrorAs(t, err, &perr)
}

func TestChat(t *testing.T) {
	gen := &fakeGenerator{}
	store := storage.NewMemoryStore()
	svc := NewService(store, &fakeEmbedder{}, gen,
		WithIDGenerator(sequentialIDs()),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	_, err := svc.Ingest(context.Background(), IngestRequest{Title: "Refunds", Text: "Refunds take five days."})
	require.NoError(t, err)

	history := []retrieval.Message{
		{Role: retrieval.RoleUser, Content: "hi"},
		{Role: retrieval.RoleAssistant, Content: "hello"},
		{Role: retrieval.RoleUser, Content: "How long do refunds take?"},
	}
	stream, err := svc.Chat(context.Background(), history, 3)
	require.NoError(t, err)
	require.Len(t, stream.Sources, 1)

	var answer string
	for d := range stream.Deltas {
		answer += d.Text
	}
	assert.Equal(t, "Refunds take five days [1].", answer)

	require.Len(t, gen.got, 3)
	assert.Equal(t, retrieval.RoleSystem, gen.got[0].Role)
	assert.Equal(t, retrieval.RoleAssistant, gen.got[1].Role)
	assert.Equal(t, retrieval.RoleUser, gen.got[2].Role)
	assert.Contains(t, gen.got[2].Content, "How long do refunds take?")
	assert.Contains(t, gen.got[2].Content, "[#1] Refunds take five days.")
}

func TestChatWithoutUserTurn(t *testing.T) {
	svc, _ := newTestService(&fakeEmbedder{})

	_, err := svc.Chat(context.Background(), []retrieval.Message{{Role: retrieval.RoleAssistant, Content: "hi"}}, 3)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "messages", verr.Field)
}

func TestStatsAndListing(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(&fakeEmbedder{}, WithClock(func() time.Time { return now }))

	empty := svc.GetStats()
	assert.Zero(t, empty.TotalDocuments)
	assert.Empty(t, empty.Collections)
	assert.Equal(t, stats.StatusNoData, empty.IngestionStatus)

	_, err := svc.Ingest(context.Background(), IngestRequest{Title: "A", Text: "Some text here.", Collection: "hr"})
	require.NoError(t, err)
	_, err = svc.Ingest(context.Background(), IngestRequest{Title: "B", Text: "More text here.", Collection: "it", Type: "markdown"})
	require.NoError(t, err)

	assert.Len(t, svc.ListDocuments(), 2)
	counts := svc.Counts()
	assert.Equal(t, 2, counts.TotalDocuments)
	assert.Equal(t, map[string]int{"hr": 1, "it": 1}, counts.ByCollection)
	assert.Equal(t, map[string]int{"text": 1, "markdown": 1}, counts.ByType)

	doc, ok := svc.GetDocument("doc-2")
	require.True(t, ok)
	assert.Equal(t, "B", doc.Title)
	_, ok = svc.GetDocument("missing")
	assert.False(t, ok)

	_, hasMirror := svc.MirrorStats()
	assert.False(t, hasMirror)
}
