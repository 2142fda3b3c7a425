package storage

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// similarityEpsilon keeps cosine similarity finite for zero vectors.
const similarityEpsilon = 1e-8

// MemoryStore is the in-process vector store. Documents and chunks live in
// maps guarded by a single RWMutex; search is an exact linear scan.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string]Document
	chunks map[string]Chunk
	order  []string // chunk ids in first-insertion order
	now    func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the clock used to stamp CreatedAt.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		docs:   make(map[string]Document),
		chunks: make(map[string]Chunk),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert stores a document and its chunks in one critical section, so readers
// observe either none or all of them. Re-upserting an id replaces the metadata
// and overwrites the supplied chunk ids; previously stored chunks that are not
// in the new set remain searchable.
func (s *MemoryStore) Upsert(doc Document, chunks []Chunk) Document {
	if doc.Collection == "" {
		doc.Collection = DefaultCollection
	}
	if doc.Version == "" {
		doc.Version = DefaultVersion
	}
	doc.Tags = NormalizeTags(doc.Tags)

	s.mu.Lock()
	defer s.mu.Unlock()

	doc.CreatedAt = s.now()
	s.docs[doc.ID] = doc

	for _, c := range chunks {
		c.ParentDocID = doc.ID
		if _, exists := s.chunks[c.ID]; !exists {
			s.order = append(s.order, c.ID)
		}
		s.chunks[c.ID] = c
	}

	return cloneDocument(doc)
}

// Search returns the k chunks most similar to query, highest score first.
// Ties keep insertion order. Chunks whose parent is missing are skipped.
func (s *MemoryStore) Search(query []float32, k int) []SearchResult {
	results := make([]SearchResult, 0)
	if k <= 0 {
		return results
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.order {
		c := s.chunks[id]
		doc, ok := s.docs[c.ParentDocID]
		if !ok {
			continue
		}
		results = append(results, SearchResult{
			ChunkID:    c.ID,
			DocumentID: doc.ID,
			Text:       c.Text,
			Score:      CosineSimilarity(query, c.Embedding),
			Title:      doc.Title,
			Type:       doc.Type,
			Collection: doc.Collection,
			Tags:       cloneTags(doc.Tags),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > k {
		results = results[:k]
	}
	return results
}

// GetDocument returns a copy of the document with the given id.
func (s *MemoryStore) GetDocument(id string) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return Document{}, false
	}
	return cloneDocument(doc), true
}

// ListDocuments returns summaries of every document, newest first.
func (s *MemoryStore) ListDocuments() []DocumentSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunkCounts := make(map[string]int, len(s.docs))
	for _, c := range s.chunks {
		chunkCounts[c.ParentDocID]++
	}

	summaries := make([]DocumentSummary, 0, len(s.docs))
	for _, doc := range s.docs {
		summaries = append(summaries, DocumentSummary{
			ID:         doc.ID,
			Title:      doc.Title,
			Type:       doc.Type,
			Collection: doc.Collection,
			Tags:       cloneTags(doc.Tags),
			Version:    doc.Version,
			CreatedAt:  doc.CreatedAt,
			ChunkCount: chunkCounts[doc.ID],
			Size:       len(doc.FullText),
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
		}
		return summaries[i].ID < summaries[j].ID
	})
	return summaries
}

// Documents returns a snapshot copy of every stored document.
func (s *MemoryStore) Documents() []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]Document, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, cloneDocument(doc))
	}
	return docs
}

// Stats counts documents by collection and type.
func (s *MemoryStore) Stats() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := Counts{
		TotalDocuments: len(s.docs),
		TotalChunks:    len(s.chunks),
		ByCollection:   make(map[string]int),
		ByType:         make(map[string]int),
	}
	for _, doc := range s.docs {
		counts.ByCollection[doc.Collection]++
		counts.ByType[doc.Type]++
	}
	return counts
}

// Len reports how many documents and chunks are stored.
func (s *MemoryStore) Len() (docs, chunks int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), len(s.chunks)
}

// NormalizeTags trims tags, drops empties and duplicates, and keeps the order
// of first appearance.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// CosineSimilarity scores two vectors in [-1, 1]. Mismatched lengths are
// compared over the shorter prefix.
func CosineSimilarity(a, b []float32) float64 {
	return dot(a, b) / (norm(a)*norm(b) + similarityEpsilon)
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cloneDocument(doc Document) Document {
	doc.Tags = cloneTags(doc.Tags)
	return doc
}

func cloneTags(tags []string) []string {
	out := make([]string, len(tags))
	copy(out, tags)
	return out
}
