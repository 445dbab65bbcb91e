package corpus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"sync/atomic"
)

// snapshot is an immutable view of the corpus. A new snapshot is built fully
// off to the side on load and published with a single pointer swap, so
// concurrent readers see either the old complete corpus or the new one.
type snapshot struct {
	chunks  []Chunk
	keyword *bm25Index
}

// MemoryStore keeps the whole corpus in memory and scores every chunk on
// each search. It also maintains a BM25 text index per snapshot for hybrid
// retrieval.
type MemoryStore struct {
	dimension int
	snap      atomic.Pointer[snapshot]
}

// NewMemoryStore creates an empty in-memory store bound to the given
// embedding dimension. Every loaded chunk must match it.
func NewMemoryStore(dimension int) *MemoryStore {
	s := &MemoryStore{dimension: dimension}
	s.snap.Store(&snapshot{})
	return s
}

// LoadFile loads a JSON Lines corpus file, one chunk object per line.
func (s *MemoryStore) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorpusLoad, err)
	}
	defer f.Close()
	return s.Load(f)
}

// Load reads a JSON Lines stream of chunks and atomically replaces the
// current snapshot. The old snapshot remains visible to in-flight searches
// until they finish.
func (s *MemoryStore) Load(r io.Reader) error {
	var chunks []Chunk

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var c Chunk
		if err := json.Unmarshal(raw, &c); err != nil {
			return fmt.Errorf("%w: line %d: %v", ErrCorpusLoad, line, err)
		}
		chunks = append(chunks, c)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCorpusLoad, err)
	}

	return s.Replace(chunks)
}

// Replace validates the chunks, builds a fresh snapshot off to the side and
// publishes it. Ordinals are assigned from the given order, which becomes
// the ingestion order for tie-breaking.
func (s *MemoryStore) Replace(chunks []Chunk) error {
	built := make([]Chunk, len(chunks))
	for i, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("%w: chunk %d has no id", ErrCorpusLoad, i)
		}
		if c.Text == "" {
			return fmt.Errorf("%w: chunk %q has no text", ErrCorpusLoad, c.ID)
		}
		if len(c.Embedding) != s.dimension {
			return fmt.Errorf("%w: chunk %q has dimension %d, store expects %d",
				ErrDimensionMismatch, c.ID, len(c.Embedding), s.dimension)
		}
		c.Ordinal = i
		built[i] = c
	}

	s.snap.Store(&snapshot{
		chunks:  built,
		keyword: newBM25Index(built),
	})
	return nil
}

// Search scores every stored chunk against the query vector and returns the
// topK best, descending, ties broken by ingestion order.
func (s *MemoryStore) Search(ctx context.Context, queryVector []float32, topK int, metric Metric) ([]ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(queryVector) != s.dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, store expects %d",
			ErrDimensionMismatch, len(queryVector), s.dimension)
	}

	snap := s.snap.Load()
	results := make([]ScoredChunk, 0, len(snap.chunks))
	for _, c := range snap.chunks {
		results = append(results, ScoredChunk{
			Chunk: c,
			Score: Similarity(metric, queryVector, c.Embedding),
		})
	}
	sortByScore(results)

	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// KeywordSearch ranks chunks lexically with BM25 and returns the topK best
// with reciprocal-rank scores in (0,1].
func (s *MemoryStore) KeywordSearch(ctx context.Context, query string, topK int) ([]ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap := s.snap.Load()
	ranked := snap.keyword.rank(query)
	if topK < len(ranked) {
		ranked = ranked[:topK]
	}

	results := make([]ScoredChunk, len(ranked))
	for i, idx := range ranked {
		results[i] = ScoredChunk{
			Chunk: snap.chunks[idx],
			Score: float32(1.0 / float64(i+1)),
		}
	}
	return results, nil
}

// Count returns the number of chunks in the current snapshot.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return len(s.snap.Load().chunks), nil
}

// ChunkIDs returns the ids of all stored chunks in ingestion order.
func (s *MemoryStore) ChunkIDs() []string {
	snap := s.snap.Load()
	ids := make([]string, len(snap.chunks))
	for i, c := range snap.chunks {
		ids[i] = c.ID
	}
	return ids
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

// sortByScore orders results by descending score, ties broken by ingestion
// ordinal so repeated queries over an unchanged corpus are deterministic.
func sortByScore(results []ScoredChunk) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.Ordinal < results[j].Chunk.Ordinal
	})
}
