package corpus

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// BM25 parameters, standard Okapi defaults.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// bm25Index is a lexical index over a snapshot's chunk texts. It is built
// once per load and never mutated afterwards.
type bm25Index struct {
	termFreq []map[string]int // per chunk
	docFreq  map[string]int
	docLen   []int
	avgLen   float64
}

func newBM25Index(chunks []Chunk) *bm25Index {
	idx := &bm25Index{
		termFreq: make([]map[string]int, len(chunks)),
		docFreq:  make(map[string]int),
		docLen:   make([]int, len(chunks)),
	}

	total := 0
	for i, c := range chunks {
		tokens := tokenize(c.Text)
		tf := make(map[string]int, len(tokens))
		for _, t := range tokens {
			tf[t]++
		}
		for t := range tf {
			idx.docFreq[t]++
		}
		idx.termFreq[i] = tf
		idx.docLen[i] = len(tokens)
		total += len(tokens)
	}
	if len(chunks) > 0 {
		idx.avgLen = float64(total) / float64(len(chunks))
	}
	return idx
}

// rank returns chunk indexes ordered by descending BM25 score for the query,
// ties broken by ingestion order. Chunks with zero score are omitted.
func (idx *bm25Index) rank(query string) []int {
	n := len(idx.termFreq)
	if n == 0 {
		return nil
	}

	queryTerms := tokenize(query)
	scores := make([]float64, n)
	for _, term := range queryTerms {
		df := idx.docFreq[term]
		if df == 0 {
			continue
		}
		idf := math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
		for i := 0; i < n; i++ {
			tf := float64(idx.termFreq[i][term])
			if tf == 0 {
				continue
			}
			norm := 1 - bm25B + bm25B*float64(idx.docLen[i])/idx.avgLen
			scores[i] += idf * tf * (bm25K1 + 1) / (tf + bm25K1*norm)
		}
	}

	ranked := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if scores[i] > 0 {
			ranked = append(ranked, i)
		}
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		if scores[ranked[a]] != scores[ranked[b]] {
			return scores[ranked[a]] > scores[ranked[b]]
		}
		return ranked[a] < ranked[b]
	})
	return ranked
}

// tokenize lowercases and splits on any non-alphanumeric rune.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
