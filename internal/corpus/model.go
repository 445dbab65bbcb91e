// Package corpus holds the document store: immutable text chunks with
// precomputed embeddings, loaded from an external ingestion pipeline and
// queried by similarity. Stores are read-only at query time; reloads publish
// a complete new snapshot atomically.
package corpus

import (
	"context"
	"errors"
	"math"
)

// Common errors for corpus operations
var (
	ErrCorpusLoad        = errors.New("corpus source unreadable or malformed")
	ErrDimensionMismatch = errors.New("chunk embedding dimension does not match the configured embedding space")
)

// Metric selects how similarity between a query and a stored embedding is
// computed.
type Metric string

const (
	MetricCosine Metric = "cosine"
	MetricDot    Metric = "dot"
)

// Valid reports whether the metric is one of the recognized choices.
func (m Metric) Valid() bool {
	return m == MetricCosine || m == MetricDot
}

// Well-known source metadata keys.
const (
	SourceDocumentID = "document_id"
	SourceTitle      = "title"
)

// Chunk is the atomic unit of retrieval: a bounded piece of source text with
// its precomputed embedding and source metadata. Chunks are immutable once
// stored and are replaced only by a full corpus reload.
type Chunk struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	Embedding []float32         `json:"embedding"`
	Source    map[string]string `json:"source_metadata,omitempty"`

	// Ordinal is the chunk's position in ingestion order, assigned when a
	// snapshot is built. It breaks similarity ties deterministically.
	Ordinal int `json:"-"`
}

// DocumentID returns the owning document's identifier, falling back to the
// chunk's own id when the metadata is absent.
func (c Chunk) DocumentID() string {
	if id, ok := c.Source[SourceDocumentID]; ok && id != "" {
		return id
	}
	return c.ID
}

// Title returns the human-readable document title, falling back to the
// document id.
func (c Chunk) Title() string {
	if t, ok := c.Source[SourceTitle]; ok && t != "" {
		return t
	}
	return c.DocumentID()
}

// ScoredChunk pairs a chunk with its similarity to a query embedding.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float32 `json:"score"`
}

// Store is the query-time contract of the document store. Implementations
// must be safe for concurrent use and must never expose a partially loaded
// corpus.
type Store interface {
	// Search returns up to topK chunks ranked by descending similarity to
	// the query vector, ties broken by ingestion order.
	Search(ctx context.Context, queryVector []float32, topK int, metric Metric) ([]ScoredChunk, error)

	// Count returns the number of chunks currently stored.
	Count(ctx context.Context) (int, error)

	// Close releases resources and closes connections.
	Close() error
}

// KeywordSearcher is implemented by stores that also index chunk text for
// lexical (BM25) search. Stores without a text index simply do not implement
// it and hybrid retrieval degrades to pure vector search.
type KeywordSearcher interface {
	KeywordSearch(ctx context.Context, query string, topK int) ([]ScoredChunk, error)
}

// Similarity computes the configured similarity between two equal-length
// vectors. Cosine scores fall in [-1,1]; dot product is unbounded.
func Similarity(metric Metric, a, b []float32) float32 {
	switch metric {
	case MetricDot:
		var dot float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
		}
		return float32(dot)
	default:
		var dot, na, nb float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
			na += float64(a[i]) * float64(a[i])
			nb += float64(b[i]) * float64(b[i])
		}
		if na == 0 || nb == 0 {
			return 0
		}
		return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
	}
}
