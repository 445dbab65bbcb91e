package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/lantern-labs/lantern/internal/corpus"
)

func vectorConfig() RetrieverConfig {
	return RetrieverConfig{Metric: corpus.MetricCosine, VectorWeight: 0.7, KeywordWeight: 0.3}
}

func storeWith(t *testing.T, chunks []corpus.Chunk) *corpus.MemoryStore {
	t.Helper()
	store := corpus.NewMemoryStore(2)
	if err := store.Replace(chunks); err != nil {
		t.Fatalf("failed to load store: %v", err)
	}
	return store
}

func TestRetrieveRankedOrder(t *testing.T) {
	// Cosine against query [1,0]: best ~1.0, good ~0.71, weak 0.
	store := storeWith(t, []corpus.Chunk{
		{ID: "weak", Text: "weak match", Embedding: []float32{0, 1},
			Source: map[string]string{corpus.SourceDocumentID: "doc-weak"}},
		{ID: "best", Text: "best match", Embedding: []float32{1, 0},
			Source: map[string]string{corpus.SourceDocumentID: "doc-best"}},
		{ID: "good", Text: "good match", Embedding: []float32{1, 1},
			Source: map[string]string{corpus.SourceDocumentID: "doc-good"}},
	})

	r, err := NewRetriever(store, vectorConfig())
	if err != nil {
		t.Fatalf("NewRetriever failed: %v", err)
	}

	results, err := r.Retrieve(context.Background(), "", []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Chunk.ID != "best" || results[1].Chunk.ID != "good" {
		t.Errorf("expected [best good], got [%s %s]", results[0].Chunk.ID, results[1].Chunk.ID)
	}
	if results[1].Score > results[0].Score {
		t.Errorf("scores not descending: %v then %v", results[0].Score, results[1].Score)
	}
}

func TestRetrieveEmptyStore(t *testing.T) {
	store := corpus.NewMemoryStore(2)
	r, err := NewRetriever(store, vectorConfig())
	if err != nil {
		t.Fatalf("NewRetriever failed: %v", err)
	}

	_, err = r.Retrieve(context.Background(), "", []float32{1, 0}, 3)
	if !errors.Is(err, ErrEmptyStore) {
		t.Errorf("expected ErrEmptyStore, got %v", err)
	}
}

func TestRetrieveFewerThanTopK(t *testing.T) {
	store := storeWith(t, []corpus.Chunk{
		{ID: "only", Text: "the only chunk", Embedding: []float32{1, 0}},
	})
	r, err := NewRetriever(store, vectorConfig())
	if err != nil {
		t.Fatalf("NewRetriever failed: %v", err)
	}

	results, err := r.Retrieve(context.Background(), "", []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected 1 result, got %d", len(results))
	}
}

func TestRetrieveDedupesByDocument(t *testing.T) {
	// Two chunks from the same document; only the higher-scoring one may
	// appear, and the slot it frees goes to another document.
	store := storeWith(t, []corpus.Chunk{
		{ID: "a-0", Text: "a first", Embedding: []float32{1, 0},
			Source: map[string]string{corpus.SourceDocumentID: "doc-a"}},
		{ID: "a-1", Text: "a second", Embedding: []float32{0.99, 0.1},
			Source: map[string]string{corpus.SourceDocumentID: "doc-a"}},
		{ID: "b-0", Text: "b first", Embedding: []float32{1, 1},
			Source: map[string]string{corpus.SourceDocumentID: "doc-b"}},
		{ID: "c-0", Text: "c first", Embedding: []float32{0, 1},
			Source: map[string]string{corpus.SourceDocumentID: "doc-c"}},
	})

	r, err := NewRetriever(store, vectorConfig())
	if err != nil {
		t.Fatalf("NewRetriever failed: %v", err)
	}

	results, err := r.Retrieve(context.Background(), "", []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Chunk.ID != "a-0" {
		t.Errorf("expected the highest-scoring chunk of doc-a, got %q", results[0].Chunk.ID)
	}
	if results[1].Chunk.ID != "b-0" {
		t.Errorf("expected doc-b to take the freed slot, got %q", results[1].Chunk.ID)
	}

	seen := make(map[string]bool)
	for _, sc := range results {
		docID := sc.Chunk.DocumentID()
		if seen[docID] {
			t.Errorf("document %q appears more than once", docID)
		}
		seen[docID] = true
	}
}

func TestRetrieveHybridBoostsKeywordMatch(t *testing.T) {
	// Vector search alone ranks "vector" first; the keyword signal for
	// "zebra" pulls the lexical match up.
	store := storeWith(t, []corpus.Chunk{
		{ID: "vector", Text: "nothing lexical here", Embedding: []float32{1, 0},
			Source: map[string]string{corpus.SourceDocumentID: "doc-v"}},
		{ID: "lexical", Text: "the zebra crossed the river", Embedding: []float32{0, 1},
			Source: map[string]string{corpus.SourceDocumentID: "doc-l"}},
	})

	r, err := NewRetriever(store, RetrieverConfig{
		Metric:        corpus.MetricCosine,
		Hybrid:        true,
		KeywordWeight: 0.9,
		VectorWeight:  0.1,
	})
	if err != nil {
		t.Fatalf("NewRetriever failed: %v", err)
	}

	results, err := r.Retrieve(context.Background(), "zebra", []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if results[0].Chunk.ID != "lexical" {
		t.Errorf("expected the keyword match first under a heavy keyword weight, got %q", results[0].Chunk.ID)
	}
}

func TestRetrieveInvalidTopK(t *testing.T) {
	store := storeWith(t, []corpus.Chunk{
		{ID: "a", Text: "t", Embedding: []float32{1, 0}},
	})
	r, err := NewRetriever(store, vectorConfig())
	if err != nil {
		t.Fatalf("NewRetriever failed: %v", err)
	}
	if _, err := r.Retrieve(context.Background(), "", []float32{1, 0}, 0); err == nil {
		t.Error("expected an error for topK = 0")
	}
}

func TestNewRetrieverValidation(t *testing.T) {
	store := corpus.NewMemoryStore(2)

	if _, err := NewRetriever(nil, vectorConfig()); err == nil {
		t.Error("expected an error for a nil store")
	}
	if _, err := NewRetriever(store, RetrieverConfig{Metric: "euclidean"}); err == nil {
		t.Error("expected an error for an unknown metric")
	}
	if _, err := NewRetriever(store, RetrieverConfig{Metric: corpus.MetricCosine, Hybrid: true}); err == nil {
		t.Error("expected an error for zero hybrid weights")
	}
}
