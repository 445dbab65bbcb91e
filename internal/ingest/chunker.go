// Package ingest builds corpora: it extracts text from source documents,
// cleans it, and splits it into overlapping chunks ready for embedding.
// Ingestion is an offline step; the engine only ever consumes its output.
package ingest

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lantern-labs/lantern/internal/corpus"
)

// ChunkerConfig controls chunk sizing in characters.
type ChunkerConfig struct {
	Size    int // maximum characters per chunk
	Overlap int // characters carried over between consecutive chunks
}

// DefaultChunkerConfig matches the corpus defaults.
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{Size: 1200, Overlap: 200}
}

var (
	hyphenBreak = regexp.MustCompile(`-\n`)
	softBreak   = regexp.MustCompile(`([^\n])\n([^\n])`)
	multiSpace  = regexp.MustCompile(`\s+`)
)

// CleanText normalizes extracted document text: dehyphenates words split
// across line breaks, joins soft-wrapped lines, and collapses whitespace.
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = hyphenBreak.ReplaceAllString(text, "")
	text = softBreak.ReplaceAllString(text, "$1 $2")
	text = multiSpace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// separators in preference order: paragraph, sentence, word. The splitter
// tries to break at the latest occurrence of the strongest separator that
// still fits the chunk size.
var separators = []string{"\n\n", ". ", "! ", "? ", ", ", " "}

// SplitText splits cleaned text into chunks of at most cfg.Size characters
// with cfg.Overlap characters of context carried between neighbors.
func SplitText(text string, cfg ChunkerConfig) []string {
	if text == "" {
		return nil
	}
	if cfg.Size <= 0 || len(text) <= cfg.Size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + cfg.Size
		if end >= len(text) {
			chunks = append(chunks, strings.TrimSpace(text[start:]))
			break
		}

		cut := breakPoint(text[start:end])
		if cut <= 0 {
			cut = cfg.Size
		}
		chunks = append(chunks, strings.TrimSpace(text[start:start+cut]))

		next := start + cut - cfg.Overlap
		if next <= start {
			next = start + cut
		}
		start = next
	}

	// Drop empties produced by aggressive trimming.
	out := chunks[:0]
	for _, c := range chunks {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// breakPoint finds the latest natural boundary in window, preferring
// stronger separators.
func breakPoint(window string) int {
	for _, sep := range separators {
		if idx := strings.LastIndex(window, sep); idx > 0 {
			return idx + len(sep)
		}
	}
	return -1
}

// BuildChunks cleans and splits a document's text into corpus chunks with
// source metadata. Embeddings are filled in by the caller.
func BuildChunks(documentID, title, text string, cfg ChunkerConfig) []corpus.Chunk {
	pieces := SplitText(CleanText(text), cfg)
	chunks := make([]corpus.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		chunks = append(chunks, corpus.Chunk{
			ID:   fmt.Sprintf("%s-%04d", documentID, i),
			Text: piece,
			Source: map[string]string{
				corpus.SourceDocumentID: documentID,
				corpus.SourceTitle:      title,
			},
		})
	}
	return chunks
}
