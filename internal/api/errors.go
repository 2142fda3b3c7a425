package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mernjs/rag-pipeline/internal/embedding"
	"github.com/mernjs/rag-pipeline/internal/extract"
	"github.com/mernjs/rag-pipeline/internal/rag"
	"github.com/mernjs/rag-pipeline/internal/storage"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusCode maps service errors to HTTP status codes.
func StatusCode(err error) int {
	var (
		validation *rag.ValidationError
		extraction *extract.Error
		provider   *embedding.ProviderError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.Is(err, extract.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.As(err, &extraction):
		return http.StatusUnprocessableEntity
	case errors.As(err, &provider):
		return http.StatusBadGateway
	case errors.Is(err, storage.ErrDocumentNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusCode(err)
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "request failed",
		"method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}
