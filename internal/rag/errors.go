// Package rag implements the retrieval-augmented generation engine: query
// embedding, top-K retrieval over a document store, bounded prompt assembly
// and LLM generation, orchestrated as a fail-fast per-request pipeline.
package rag

import (
	"context"
	"errors"

	"github.com/lantern-labs/lantern/internal/corpus"
)

// Kind is the stable, caller-visible classification of an engine failure.
// Kinds are part of the external contract; messages are free to change.
type Kind string

const (
	KindCorpusLoad        Kind = "corpus_load"
	KindEmptyStore        Kind = "empty_store"
	KindEmbedding         Kind = "embedding"
	KindRetrieval         Kind = "retrieval"
	KindPromptTooLarge    Kind = "prompt_too_large"
	KindGenerationTimeout Kind = "generation_timeout"
	KindGenerationService Kind = "generation_service"
	KindCanceled          Kind = "canceled"
	KindInternal          Kind = "internal"
)

// Sentinel errors for the engine's components. Components wrap these with
// detail; the engine classifies them back into Kinds for callers.
var (
	ErrEmptyStore        = errors.New("document store holds no chunks")
	ErrEmbedding         = errors.New("embedding failed")
	ErrPromptTooLarge    = errors.New("question alone exceeds the prompt length budget")
	ErrGenerationTimeout = errors.New("generation timed out")
	ErrGenerationService = errors.New("generation service failed")
	ErrInvalidPrompt     = errors.New("prompt is empty")
)

// Classify maps a component error to its stable kind.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, corpus.ErrCorpusLoad), errors.Is(err, corpus.ErrDimensionMismatch):
		return KindCorpusLoad
	case errors.Is(err, ErrEmptyStore):
		return KindEmptyStore
	case errors.Is(err, ErrEmbedding):
		return KindEmbedding
	case errors.Is(err, ErrPromptTooLarge):
		return KindPromptTooLarge
	case errors.Is(err, ErrGenerationTimeout):
		return KindGenerationTimeout
	case errors.Is(err, ErrGenerationService), errors.Is(err, ErrInvalidPrompt):
		return KindGenerationService
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, corpus.ErrSearchFailed), errors.Is(err, corpus.ErrConnectionFailed):
		return KindRetrieval
	default:
		return KindInternal
	}
}
