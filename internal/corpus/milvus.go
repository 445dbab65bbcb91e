package corpus

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// Common errors for Milvus operations
var (
	ErrConnectionFailed = errors.New("failed to connect to Milvus")
	ErrInsertFailed     = errors.New("failed to insert chunks")
	ErrSearchFailed     = errors.New("failed to search vectors")
)

// MilvusConfig holds configuration for the Milvus connection and collection.
type MilvusConfig struct {
	Address        string // Milvus server address (e.g., "localhost:19530")
	CollectionName string
	Dimension      int
	Metric         Metric

	// HNSW index parameters
	M              int
	EfConstruction int
}

// DefaultMilvusConfig returns defaults matching a text-embedding-3-large
// corpus with cosine similarity.
func DefaultMilvusConfig() MilvusConfig {
	return MilvusConfig{
		Address:        "localhost:19530",
		CollectionName: "lantern_chunks",
		Dimension:      3072,
		Metric:         MetricCosine,
		M:              16,
		EfConstruction: 256,
	}
}

func (c MilvusConfig) metricType() entity.MetricType {
	if c.Metric == MetricDot {
		return entity.IP
	}
	return entity.COSINE
}

// MilvusStore implements Store backed by a Milvus collection with an HNSW
// index. Chunk text and source metadata are stored alongside the vectors so
// search results are self-contained.
type MilvusStore struct {
	client client.Client
	config MilvusConfig
}

// NewMilvusStore connects to Milvus and ensures the chunk collection exists
// with the expected schema and index.
func NewMilvusStore(ctx context.Context, config MilvusConfig) (*MilvusStore, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension %d", ErrDimensionMismatch, config.Dimension)
	}

	c, err := client.NewGrpcClient(ctx, config.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &MilvusStore{client: c, config: config}
	if err := store.ensureCollection(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return store, nil
}

func (m *MilvusStore) ensureCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.config.CollectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if has {
		return nil
	}

	schema := &entity.Schema{
		CollectionName: m.config.CollectionName,
		AutoID:         true,
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeInt64,
				PrimaryKey: true,
				AutoID:     true,
			},
			{
				Name:     "chunk_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "text",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "65535",
				},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", m.config.Dimension),
				},
			},
			{
				Name:     "document_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "256",
				},
			},
			{
				Name:     "title",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "512",
				},
			},
			{
				// Ingestion order, used for deterministic tie-breaking.
				Name:     "ordinal",
				DataType: entity.FieldTypeInt64,
			},
		},
	}

	if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexHNSW(m.config.metricType(), m.config.M, m.config.EfConstruction)
	if err != nil {
		return fmt.Errorf("failed to create index config: %w", err)
	}
	if err := m.client.CreateIndex(ctx, m.config.CollectionName, "embedding", idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := m.client.LoadCollection(ctx, m.config.CollectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	return nil
}

// Insert adds chunks to the collection and flushes so they become
// searchable. Embedding dimensions are validated against the collection.
func (m *MilvusStore) Insert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	chunkIDs := make([]string, len(chunks))
	texts := make([]string, len(chunks))
	embeddings := make([][]float32, len(chunks))
	documentIDs := make([]string, len(chunks))
	titles := make([]string, len(chunks))
	ordinals := make([]int64, len(chunks))

	for i, c := range chunks {
		if len(c.Embedding) != m.config.Dimension {
			return fmt.Errorf("%w: chunk %q has dimension %d, collection expects %d",
				ErrDimensionMismatch, c.ID, len(c.Embedding), m.config.Dimension)
		}
		chunkIDs[i] = c.ID
		texts[i] = c.Text
		embeddings[i] = c.Embedding
		documentIDs[i] = c.DocumentID()
		titles[i] = c.Title()
		ordinals[i] = int64(c.Ordinal)
	}

	columns := []entity.Column{
		entity.NewColumnVarChar("chunk_id", chunkIDs),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnFloatVector("embedding", m.config.Dimension, embeddings),
		entity.NewColumnVarChar("document_id", documentIDs),
		entity.NewColumnVarChar("title", titles),
		entity.NewColumnInt64("ordinal", ordinals),
	}

	if _, err := m.client.Insert(ctx, m.config.CollectionName, "", columns...); err != nil {
		return fmt.Errorf("%w: %v", ErrInsertFailed, err)
	}
	if err := m.client.Flush(ctx, m.config.CollectionName, false); err != nil {
		return fmt.Errorf("failed to flush data: %w", err)
	}
	return nil
}

// Search performs a top-K ANN search and returns scored chunks.
func (m *MilvusStore) Search(ctx context.Context, queryVector []float32, topK int, metric Metric) ([]ScoredChunk, error) {
	if len(queryVector) != m.config.Dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, collection expects %d",
			ErrDimensionMismatch, len(queryVector), m.config.Dimension)
	}

	sp, err := entity.NewIndexHNSWSearchParam(64)
	if err != nil {
		return nil, fmt.Errorf("failed to create search params: %w", err)
	}

	vectors := []entity.Vector{entity.FloatVector(queryVector)}
	outputFields := []string{"chunk_id", "text", "document_id", "title", "ordinal"}

	results, err := m.client.Search(
		ctx,
		m.config.CollectionName,
		nil,
		"",
		outputFields,
		vectors,
		"embedding",
		m.config.metricType(),
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	if len(results) == 0 {
		return []ScoredChunk{}, nil
	}

	scored := make([]ScoredChunk, 0, results[0].ResultCount)
	for i := 0; i < results[0].ResultCount; i++ {
		chunk := Chunk{Source: make(map[string]string)}
		for _, field := range results[0].Fields {
			switch field.Name() {
			case "chunk_id":
				chunk.ID = field.(*entity.ColumnVarChar).Data()[i]
			case "text":
				chunk.Text = field.(*entity.ColumnVarChar).Data()[i]
			case "document_id":
				chunk.Source[SourceDocumentID] = field.(*entity.ColumnVarChar).Data()[i]
			case "title":
				chunk.Source[SourceTitle] = field.(*entity.ColumnVarChar).Data()[i]
			case "ordinal":
				chunk.Ordinal = int(field.(*entity.ColumnInt64).Data()[i])
			}
		}
		scored = append(scored, ScoredChunk{Chunk: chunk, Score: results[0].Scores[i]})
	}
	sortByScore(scored)
	return scored, nil
}

// Count returns the collection's row count.
func (m *MilvusStore) Count(ctx context.Context) (int, error) {
	stats, err := m.client.GetCollectionStatistics(ctx, m.config.CollectionName)
	if err != nil {
		return 0, fmt.Errorf("failed to get stats: %w", err)
	}
	n, err := strconv.Atoi(stats["row_count"])
	if err != nil {
		return 0, fmt.Errorf("unexpected row_count %q: %w", stats["row_count"], err)
	}
	return n, nil
}

// Close releases the Milvus connection.
func (m *MilvusStore) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}
