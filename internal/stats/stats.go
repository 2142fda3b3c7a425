// Package stats derives freshness and version summaries from stored documents.
package stats

import (
	"fmt"
	"sort"
	"time"

	"github.com/mernjs/rag-pipeline/internal/storage"
)

// Freshness statuses.
const (
	StatusUpToDate   = "Up-to-date"
	StatusRefreshing = "Refreshing"
	StatusStale      = "Stale"
	StatusNoData     = "No data"
)

const (
	upToDateWindow   = 2 * time.Minute
	refreshingWindow = 60 * time.Minute
)

// DocumentSource supplies the documents to summarise.
type DocumentSource interface {
	Documents() []storage.Document
	Len() (docs, chunks int)
}

// DatasetCard summarises one collection.
type DatasetCard struct {
	Name      string    `json:"name"`
	Documents int       `json:"documents"`
	Latest    time.Time `json:"latest"`
	Age       string    `json:"age"`
	Status    string    `json:"status"`
	Version   string    `json:"version"`
}

// Summary is the aggregate view returned by Aggregator.Summary.
type Summary struct {
	TotalDocuments  int           `json:"total_documents"`
	TotalChunks     int           `json:"total_chunks"`
	Collections     []DatasetCard `json:"collections"`
	IngestionStatus string        `json:"ingestion_status"`
	LastIngestedAt  *time.Time    `json:"last_ingested_at,omitempty"`
}

// Aggregator recomputes summaries from its source on every call.
type Aggregator struct {
	source DocumentSource
	now    func() time.Time
}

// NewAggregator creates an Aggregator. A nil clock uses time.Now.
func NewAggregator(source DocumentSource, now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{source: source, now: now}
}

// Summary groups documents by collection and classifies each group, and the
// store as a whole, by the age of its newest document.
func (a *Aggregator) Summary() Summary {
	docs := a.source.Documents()
	_, chunks := a.source.Len()

	summary := Summary{
		TotalDocuments:  len(docs),
		TotalChunks:     chunks,
		Collections:     make([]DatasetCard, 0),
		IngestionStatus: StatusNoData,
	}
	if len(docs) == 0 {
		return summary
	}

	type group struct {
		count  int
		latest time.Time
	}
	groups := make(map[string]*group)
	var latest time.Time

	for _, doc := range docs {
		g, ok := groups[doc.Collection]
		if !ok {
			g = &group{}
			groups[doc.Collection] = g
		}
		g.count++
		if doc.CreatedAt.After(g.latest) {
			g.latest = doc.CreatedAt
		}
		if doc.CreatedAt.After(latest) {
			latest = doc.CreatedAt
		}
	}

	now := a.now()
	for name, g := range groups {
		age := now.Sub(g.latest)
		summary.Collections = append(summary.Collections, DatasetCard{
			Name:      name,
			Documents: g.count,
			Latest:    g.latest,
			Age:       FormatAge(age),
			Status:    Status(age),
			Version:   VersionLabel(g.count),
		})
	}
	sort.Slice(summary.Collections, func(i, j int) bool {
		return summary.Collections[i].Name < summary.Collections[j].Name
	})

	summary.IngestionStatus = Status(now.Sub(latest))
	summary.LastIngestedAt = &latest
	return summary
}

// Status buckets an age into a freshness status.
func Status(age time.Duration) string {
	switch {
	case age < upToDateWindow:
		return StatusUpToDate
	case age < refreshingWindow:
		return StatusRefreshing
	default:
		return StatusStale
	}
}

// VersionLabel synthesises a display version from a document count.
func VersionLabel(count int) string {
	return fmt.Sprintf("v%d.%d", 1+count/5, count%10)
}

// FormatAge renders an age as a short relative string.
func FormatAge(age time.Duration) string {
	switch {
	case age < time.Minute:
		return "just now"
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(age.Hours()/24))
	}
}
