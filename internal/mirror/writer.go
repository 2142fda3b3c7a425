// Package mirror copies ingested documents to a durable store in the background.
package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mernjs/rag-pipeline/internal/storage"
)

const (
	// DefaultQueueSize bounds how many pending writes are buffered.
	DefaultQueueSize = 256

	// DefaultWriteTimeout bounds a single document write, chunks included.
	DefaultWriteTimeout = 30 * time.Second
)

// Sink is a write-only durable store. QdrantStorage implements it.
type Sink interface {
	UpsertDocument(ctx context.Context, doc *storage.Document) error
	UpsertChunks(ctx context.Context, chunks []*storage.Chunk) error
}

type item struct {
	doc    storage.Document
	chunks []storage.Chunk
}

// Stats counts mirror outcomes since start.
type Stats struct {
	Written int64 `json:"written"`
	Failed  int64 `json:"failed"`
	Dropped int64 `json:"dropped"`
	Pending int   `json:"pending"`
}

// Writer drains a bounded queue into a Sink from a single goroutine.
// Failures are logged and counted, never returned to the enqueuer.
type Writer struct {
	sink    Sink
	queue   chan item
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	written atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// Config tunes a Writer. Zero values use the defaults.
type Config struct {
	QueueSize    int
	WriteTimeout time.Duration
}

// NewWriter starts a Writer for sink. Call Close to stop it.
func NewWriter(sink Sink, cfg Config, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	w := &Writer{
		sink:    sink,
		queue:   make(chan item, cfg.QueueSize),
		timeout: cfg.WriteTimeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// Enqueue schedules doc and its chunks for mirroring without blocking.
// It reports false when the write was dropped because the queue is full or
// the writer is closed.
func (w *Writer) Enqueue(doc storage.Document, chunks []storage.Chunk) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		w.dropped.Add(1)
		w.logger.Warn("mirror closed, dropping document", "document_id", doc.ID)
		return false
	}

	select {
	case w.queue <- item{doc: doc, chunks: chunks}:
		return true
	default:
		w.dropped.Add(1)
		w.logger.Warn("mirror queue full, dropping document", "document_id", doc.ID, "queue_size", cap(w.queue))
		return false
	}
}

func (w *Writer) run() {
	defer close(w.done)

	for it := range w.queue {
		if err := w.write(it); err != nil {
			w.failed.Add(1)
			w.logger.Error("mirror write failed", "document_id", it.doc.ID, "error", err)
			continue
		}
		w.written.Add(1)
		w.logger.Debug("mirrored document", "document_id", it.doc.ID, "chunks", len(it.chunks))
	}
}

func (w *Writer) write(it item) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	doc := it.doc
	if err := w.sink.UpsertDocument(ctx, &doc); err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}

	if len(it.chunks) == 0 {
		return nil
	}
	chunks := make([]*storage.Chunk, len(it.chunks))
	for i := range it.chunks {
		chunks[i] = &it.chunks[i]
	}
	if err := w.sink.UpsertChunks(ctx, chunks); err != nil {
		return fmt.Errorf("upsert chunks: %w", err)
	}
	return nil
}

// Stats returns the current counters.
func (w *Writer) Stats() Stats {
	return Stats{
		Written: w.written.Load(),
		Failed:  w.failed.Load(),
		Dropped: w.dropped.Load(),
		Pending: len(w.queue),
	}
}

// Close stops accepting writes and waits for queued writes to finish or
// for ctx to expire, whichever comes first.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("mirror drain: %w (%d pending)", ctx.Err(), len(w.queue))
	}
}
