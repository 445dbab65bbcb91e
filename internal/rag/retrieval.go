package rag

import (
	"context"
	"fmt"
	"sort"

	"github.com/lantern-labs/lantern/internal/corpus"
)

// dedupeOverfetch is how many times topK the retriever asks the store for
// before deduplicating by source document, so that near-duplicate chunks
// from one document do not starve the final ranking.
const dedupeOverfetch = 4

// RetrieverConfig controls ranking behavior.
type RetrieverConfig struct {
	// Metric selects cosine or dot-product similarity.
	Metric corpus.Metric

	// Hybrid enables BM25 keyword scoring merged with vector similarity,
	// on stores that index text. Stores without a text index fall back to
	// pure vector search.
	Hybrid bool

	// KeywordWeight and VectorWeight weight the two rankings when Hybrid
	// is enabled. Rank-reciprocal scores are used on both sides so the
	// weights are metric-independent.
	KeywordWeight float64
	VectorWeight  float64
}

// Retriever performs top-K retrieval over a document store with
// deterministic ordering and per-document deduplication.
type Retriever struct {
	store  corpus.Store
	config RetrieverConfig
}

// NewRetriever creates a Retriever over the given store.
func NewRetriever(store corpus.Store, config RetrieverConfig) (*Retriever, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if !config.Metric.Valid() {
		return nil, fmt.Errorf("unknown similarity metric %q", config.Metric)
	}
	if config.Hybrid && config.KeywordWeight+config.VectorWeight <= 0 {
		return nil, fmt.Errorf("hybrid weights must sum to a positive value")
	}
	return &Retriever{store: store, config: config}, nil
}

// Retrieve returns up to topK chunks relevant to the query, ranked by
// descending score, ties broken by ingestion order, with at most one chunk
// per source document (the highest-scoring occurrence wins). It fails with
// ErrEmptyStore when the store holds no chunks at all.
func (r *Retriever) Retrieve(ctx context.Context, query string, queryVector []float32, topK int) ([]corpus.ScoredChunk, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}

	total, err := r.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	if total == 0 {
		return nil, ErrEmptyStore
	}

	results, err := r.fetch(ctx, query, queryVector, topK*dedupeOverfetch)
	if err != nil {
		return nil, err
	}
	deduped := dedupeByDocument(results)

	// Deduplication may have eaten into topK; re-fetch the whole corpus
	// once before accepting a short result.
	if len(deduped) < topK && topK*dedupeOverfetch < total {
		results, err = r.fetch(ctx, query, queryVector, total)
		if err != nil {
			return nil, err
		}
		deduped = dedupeByDocument(results)
	}

	if len(deduped) > topK {
		deduped = deduped[:topK]
	}
	return deduped, nil
}

func (r *Retriever) fetch(ctx context.Context, query string, queryVector []float32, k int) ([]corpus.ScoredChunk, error) {
	vector, err := r.store.Search(ctx, queryVector, k, r.config.Metric)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	if !r.config.Hybrid || query == "" {
		return vector, nil
	}
	keywordStore, ok := r.store.(corpus.KeywordSearcher)
	if !ok {
		return vector, nil
	}
	keyword, err := keywordStore.KeywordSearch(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	return r.merge(vector, keyword), nil
}

// merge combines the two rankings with weighted reciprocal-rank scores: each
// list contributes weight/(1+rank) for every chunk it ranked. Rank-based
// scoring keeps the weights meaningful across metrics.
func (r *Retriever) merge(vector, keyword []corpus.ScoredChunk) []corpus.ScoredChunk {
	type entry struct {
		chunk corpus.Chunk
		score float64
	}
	merged := make(map[string]*entry, len(vector)+len(keyword))

	for rank, sc := range vector {
		merged[sc.Chunk.ID] = &entry{
			chunk: sc.Chunk,
			score: r.config.VectorWeight / float64(1+rank),
		}
	}
	for rank, sc := range keyword {
		contribution := r.config.KeywordWeight / float64(1+rank)
		if e, ok := merged[sc.Chunk.ID]; ok {
			e.score += contribution
		} else {
			merged[sc.Chunk.ID] = &entry{chunk: sc.Chunk, score: contribution}
		}
	}

	combined := make([]corpus.ScoredChunk, 0, len(merged))
	for _, e := range merged {
		combined = append(combined, corpus.ScoredChunk{Chunk: e.chunk, Score: float32(e.score)})
	}
	sort.SliceStable(combined, func(i, j int) bool {
		if combined[i].Score != combined[j].Score {
			return combined[i].Score > combined[j].Score
		}
		return combined[i].Chunk.Ordinal < combined[j].Chunk.Ordinal
	})
	return combined
}

// dedupeByDocument keeps only the highest-scoring chunk per source document.
// Input is already ranked, so the first occurrence per document wins.
func dedupeByDocument(results []corpus.ScoredChunk) []corpus.ScoredChunk {
	seen := make(map[string]struct{}, len(results))
	deduped := make([]corpus.ScoredChunk, 0, len(results))
	for _, sc := range results {
		docID := sc.Chunk.DocumentID()
		if _, ok := seen[docID]; ok {
			continue
		}
		seen[docID] = struct{}{}
		deduped = append(deduped, sc)
	}
	return deduped
}
