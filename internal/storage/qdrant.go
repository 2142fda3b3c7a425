package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

const (
	// DefaultQdrantCollection is the collection mirrored documents and chunks are written to.
	DefaultQdrantCollection = "rag_documents"

	// DefaultVectorDimension matches text-embedding-3-small.
	DefaultVectorDimension = 1536

	// upsertBatchSize caps the number of points sent per Upsert call.
	upsertBatchSize = 100

	contentVector = "content"
)

// pointNamespace derives stable Qdrant point ids from document and chunk ids,
// which are not UUIDs themselves.
var pointNamespace = uuid.MustParse("6f1c3b7e-5a43-4d0e-9a55-2f0c8f5d9b21")

// QdrantConfig describes the Qdrant mirror connection.
type QdrantConfig struct {
	Host       string
	Port       int
	Collection string
	Dimension  int
}

// QdrantStorage is a write-only durable mirror of the in-memory store.
// Reads are always served from MemoryStore.
type QdrantStorage struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// NewQdrantStorage connects to Qdrant and waits for it to report healthy.
// It fails with ErrQdrantUnreachable if the health check keeps failing.
func NewQdrantStorage(ctx context.Context, cfg QdrantConfig) (*QdrantStorage, error) {
	if cfg.Collection == "" {
		cfg.Collection = DefaultQdrantCollection
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultVectorDimension
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.Host,
		Port: cfg.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	s := &QdrantStorage{
		client:     client,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
	}

	if err := s.healthCheckWithRetry(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}

	return s, nil
}

func newRetryBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return backoff.WithContext(b, ctx)
}

func (s *QdrantStorage) healthCheckWithRetry(ctx context.Context) error {
	return backoff.Retry(func() error {
		return s.Health(ctx)
	}, newRetryBackOff(ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantStorage) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// EnsureCollection creates the mirror collection and its payload indexes if
// they do not exist yet. Safe to call repeatedly.
func (s *QdrantStorage) EnsureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	// Named vectors let parent documents (no vector) and chunks share one collection.
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			contentVector: {
				Size:     uint64(s.dimension),
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	if err := s.createPayloadIndexes(ctx); err != nil {
		return fmt.Errorf("failed to create payload indexes: %w", err)
	}
	return nil
}

func (s *QdrantStorage) createPayloadIndexes(ctx context.Context) error {
	fields := []string{
		"kind",          // "parent" or "chunk"
		"document_id",   // Lookup chunks by parent
		"collection",    // Dataset grouping
		"document_type", // Format tag
	}

	for _, field := range fields {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}
	return nil
}

// Close closes the Qdrant client connection.
func (s *QdrantStorage) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *QdrantStorage) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	return backoff.Retry(func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points:         points,
		})
		return err
	}, newRetryBackOff(ctx))
}

// UpsertDocument mirrors a document as a vectorless parent point.
func (s *QdrantStorage) UpsertDocument(ctx context.Context, doc *Document) error {
	payload := map[string]any{
		"kind":          "parent",
		"document_id":   doc.ID,
		"title":         doc.Title,
		"document_type": doc.Type,
		"collection":    doc.Collection,
		"version":       doc.Version,
		"full_text":     doc.FullText,
		"summary":       doc.Summary,
		"tags":          toValueList(doc.Tags),
		"created_at":    doc.CreatedAt.Format(time.RFC3339),
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(DocumentPointID(doc.ID)),
		Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{}),
		Payload: qdrant.NewValueMap(payload),
	}

	return s.upsertWithRetry(ctx, []*qdrant.PointStruct{point})
}

// UpsertChunks mirrors chunks with their embeddings in batches of 100.
// Every embedding must match the configured dimension.
func (s *QdrantStorage) UpsertChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	for i, chunk := range chunks {
		if len(chunk.Embedding) != s.dimension {
			return fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(chunk.Embedding), s.dimension)
		}
	}

	for i := 0; i < len(chunks); i += upsertBatchSize {
		end := min(i+upsertBatchSize, len(chunks))

		batch := chunks[i:end]
		points := make([]*qdrant.PointStruct, len(batch))
		for j, chunk := range batch {
			points[j] = &qdrant.PointStruct{
				Id: qdrant.NewIDUUID(ChunkPointID(chunk.ID)),
				Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
					contentVector: qdrant.NewVector(chunk.Embedding...),
				}),
				Payload: qdrant.NewValueMap(map[string]any{
					"kind":        "chunk",
					"chunk_id":    chunk.ID,
					"document_id": chunk.ParentDocID,
					"chunk_index": chunk.Index,
					"text":        chunk.Text,
				}),
			}
		}

		if err := s.upsertWithRetry(ctx, points); err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}

	return nil
}

// CollectionInfo contains mirror collection statistics.
type CollectionInfo struct {
	Name        string
	PointsCount uint64
}

// GetCollectionInfo reports how many points the mirror collection holds.
func (s *QdrantStorage) GetCollectionInfo(ctx context.Context) (*CollectionInfo, error) {
	collection, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}
	return &CollectionInfo{
		Name:        s.collection,
		PointsCount: collection.GetPointsCount(),
	}, nil
}

// DocumentPointID maps a document id to the UUID its parent point is stored under.
func DocumentPointID(id string) string {
	return pointID("doc/" + id)
}

// ChunkPointID maps a chunk id to the UUID its point is stored under.
// Document and chunk ids are prefixed apart, so a document named "a:1"
// never shares a point with chunk 1 of "a".
func ChunkPointID(id string) string {
	return pointID("chunk/" + id)
}

func pointID(key string) string {
	return uuid.NewSHA1(pointNamespace, []byte(key)).String()
}

// toValueList converts a string slice for NewValueMap, which rejects []string.
func toValueList(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
