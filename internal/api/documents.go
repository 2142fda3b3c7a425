package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/mernjs/rag-pipeline/internal/rag"
	"github.com/mernjs/rag-pipeline/internal/stats"
	"github.com/mernjs/rag-pipeline/internal/storage"
)

// ListResponse is the body of GET /api/documents.
type ListResponse struct {
	Documents []storage.DocumentSummary `json:"documents"`
	Count     int                       `json:"count"`
}

// SearchResponse is the body of GET /api/search.
type SearchResponse struct {
	Query   string                 `json:"query"`
	Results []storage.SearchResult `json:"results"`
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	stats.Summary
	ByCollection map[string]int `json:"by_collection"`
	ByType       map[string]int `json:"by_type"`
}

// handleIngest accepts a JSON rag.IngestRequest or a multipart form with a
// "file" part and optional title, collection, tags and version fields.
func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	mediaType := "application/json"
	if ct := r.Header.Get("Content-Type"); ct != "" {
		parsed, _, err := mime.ParseMediaType(ct)
		if err != nil {
			h.writeError(w, r, &rag.ValidationError{Field: "Content-Type", Reason: err.Error()})
			return
		}
		mediaType = parsed
	}

	var (
		res rag.IngestResult
		err error
	)
	switch mediaType {
	case "application/json":
		res, err = h.ingestJSON(r)
	case "multipart/form-data":
		res, err = h.ingestMultipart(r)
	default:
		writeJSON(w, http.StatusUnsupportedMediaType, ErrorResponse{
			Error: fmt.Sprintf("unsupported content type %q: send application/json or multipart/form-data", mediaType),
		})
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) ingestJSON(r *http.Request) (rag.IngestResult, error) {
	var req rag.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return rag.IngestResult{}, &rag.ValidationError{Field: "body", Reason: err.Error()}
	}
	return h.lib.Ingest(r.Context(), req)
}

func (h *Handler) ingestMultipart(r *http.Request) (rag.IngestResult, error) {
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		return rag.IngestResult{}, &rag.ValidationError{Field: "body", Reason: err.Error()}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return rag.IngestResult{}, &rag.ValidationError{Field: "file", Reason: "is required"}
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return rag.IngestResult{}, &rag.ValidationError{Field: "file", Reason: err.Error()}
	}

	return h.lib.IngestFile(r.Context(), rag.FileRequest{
		Filename:   header.Filename,
		MIMEType:   header.Header.Get("Content-Type"),
		Data:       data,
		Title:      r.FormValue("title"),
		Collection: r.FormValue("collection"),
		Tags:       splitTags(r.FormValue("tags")),
		Version:    r.FormValue("version"),
	})
}

// splitTags parses a comma separated form value.
func splitTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func (h *Handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	collection := r.URL.Query().Get("collection")

	docs := make([]storage.DocumentSummary, 0)
	for _, d := range h.lib.ListDocuments() {
		if collection != "" && d.Collection != collection {
			continue
		}
		docs = append(docs, d)
	}

	writeJSON(w, http.StatusOK, ListResponse{Documents: docs, Count: len(docs)})
}

func (h *Handler) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	doc, ok := h.lib.GetDocument(id)
	if !ok {
		h.writeError(w, r, fmt.Errorf("%w: %s", storage.ErrDocumentNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	k, err := h.parseK(r.URL.Query().Get("k"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	results, err := h.lib.Search(r.Context(), query, k)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Query: query, Results: results})
}

// parseK reads an optional result count, falling back to the configured default.
func (h *Handler) parseK(raw string) (int, error) {
	if raw == "" {
		return h.topK, nil
	}
	k, err := strconv.Atoi(raw)
	if err != nil || k <= 0 {
		return 0, &rag.ValidationError{Field: "k", Reason: "must be a positive integer"}
	}
	return k, nil
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	counts := h.lib.Counts()
	writeJSON(w, http.StatusOK, StatsResponse{
		Summary:      h.lib.GetStats(),
		ByCollection: counts.ByCollection,
		ByType:       counts.ByType,
	})
}
