package api

import (
	"context"
	"net/http"
	"time"

	"github.com/mernjs/rag-pipeline/internal/mirror"
)

// HealthResponse represents the JSON response from the health check endpoint.
type HealthResponse struct {
	Status    string        `json:"status"`
	Documents int           `json:"documents"`
	Chunks    int           `json:"chunks"`
	Mirror    string        `json:"mirror"`
	Queue     *mirror.Stats `json:"mirror_queue,omitempty"`
	Timestamp string        `json:"timestamp"`
}

// HealthChecker is the mirror connectivity probe. QdrantStorage implements it.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// NewHealthHandler creates an HTTP handler for the /health endpoint.
// The in-memory store is authoritative, so an unreachable mirror only
// degrades the status and the endpoint still answers 200.
func NewHealthHandler(lib Library, checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts := lib.Counts()
		response := HealthResponse{
			Status:    "healthy",
			Documents: counts.TotalDocuments,
			Chunks:    counts.TotalChunks,
			Mirror:    "disabled",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}

		if st, ok := lib.MirrorStats(); ok {
			response.Queue = &st
		}

		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()

			if err := checker.Health(ctx); err != nil {
				response.Status = "degraded"
				response.Mirror = "disconnected"
			} else {
				response.Mirror = "connected"
			}
		}

		writeJSON(w, http.StatusOK, response)
	}
}
