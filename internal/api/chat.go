package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mernjs/rag-pipeline/internal/rag"
	"github.com/mernjs/rag-pipeline/internal/retrieval"
)

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Messages []retrieval.Message `json:"messages"`
	K        int                 `json:"k,omitempty"`
}

// DeltaEvent is the data of a "delta" event.
type DeltaEvent struct {
	Text string `json:"text"`
}

// DoneEvent is the data of the final "done" event.
type DoneEvent struct {
	// Error holds the provider failure when the answer was cut short.
	Error string `json:"error,omitempty"`
}

// sseWriter writes Server-Sent Events and flushes each one.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	return &sseWriter{w: w, flusher: flusher}, true
}

func (s *sseWriter) event(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// handleChat streams an answer as a "sources" event, one "delta" event per
// piece of text, then "done". The stream stops when the client disconnects.
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, &rag.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	k := req.K
	if k <= 0 {
		k = h.topK
	}

	// Cancelling stops generation whenever the handler returns early.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	stream, err := h.lib.Chat(ctx, req.Messages, k)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	sse, ok := newSSEWriter(w)
	if !ok {
		cancel()
		for range stream.Deltas {
		}
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "streaming unsupported"})
		return
	}

	if err := sse.event("sources", stream.Sources); err != nil {
		h.logger.Debug("client gone before sources", "error", err)
		return
	}

	var done DoneEvent
	for d := range stream.Deltas {
		if d.Err != nil {
			done.Error = d.Err.Error()
			h.logger.Warn("generation failed mid-stream", "error", d.Err)
		}
		if err := sse.event("delta", DeltaEvent{Text: d.Text}); err != nil {
			h.logger.Debug("client disconnected during chat", "error", err)
			return
		}
	}
	if r.Context().Err() != nil {
		return
	}
	_ = sse.event("done", done)
}
