package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lantern-labs/lantern/internal/corpus"
)

// Stage identifies where a request is in the pipeline. A request moves
// through the stages in order and terminates in StageDone or StageFailed.
type Stage string

const (
	StageEmbedding  Stage = "embedding"
	StageRetrieving Stage = "retrieving"
	StageAssembling Stage = "assembling"
	StageGenerating Stage = "generating"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// Failure is the structured outcome of a failed request: the stage that
// failed, the stable error kind, and a human-readable message with no
// internal detail.
type Failure struct {
	Stage   Stage
	Kind    Kind
	Message string
	err     error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Unwrap exposes the originating component error for errors.Is checks.
func (f *Failure) Unwrap() error { return f.err }

// Answer is a successful engine response with provenance.
type Answer struct {
	ID           string    `json:"id"`
	Text         string    `json:"text"`
	UsedChunkIDs []string  `json:"used_chunk_ids"`
	Sources      []string  `json:"sources,omitempty"`
	Model        string    `json:"model"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// EngineConfig holds the engine's tuning knobs.
type EngineConfig struct {
	// TopK is the number of chunks to retrieve as context.
	TopK int

	// Retriever controls similarity metric and hybrid search.
	Retriever RetrieverConfig

	// MaxPromptLength bounds the rendered prompt in characters.
	MaxPromptLength int

	// Generator controls the per-attempt timeout and retry policy.
	Generator GeneratorConfig

	// Model is recorded on answers for traceability.
	Model string
}

// DefaultEngineConfig returns the default engine tuning.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		TopK: 5,
		Retriever: RetrieverConfig{
			Metric:        corpus.MetricCosine,
			Hybrid:        false,
			KeywordWeight: 0.3,
			VectorWeight:  0.7,
		},
		MaxPromptLength: 12000,
		Generator:       DefaultGeneratorConfig(),
		Model:           "gpt-4o",
	}
}

// Engine orchestrates one query end to end: embed the question, retrieve
// context, assemble a bounded prompt, generate the answer. It holds no
// per-request state, so concurrent calls are independent; it fails fast on
// the first stage error and never returns a partial answer.
type Engine struct {
	config    EngineConfig
	embedder  Embedder
	retriever *Retriever
	assembler *Assembler
	generator *Generator
	logger    *zap.Logger
}

// NewEngine wires the pipeline components over the given store and LLM.
func NewEngine(config EngineConfig, embedder Embedder, store corpus.Store, llm LLM, logger *zap.Logger) (*Engine, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	if llm == nil {
		return nil, fmt.Errorf("llm cannot be nil")
	}
	if config.TopK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", config.TopK)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	retriever, err := NewRetriever(store, config.Retriever)
	if err != nil {
		return nil, fmt.Errorf("failed to create retriever: %w", err)
	}

	return &Engine{
		config:    config,
		embedder:  embedder,
		retriever: retriever,
		assembler: NewAssembler(config.MaxPromptLength),
		generator: NewGenerator(llm, config.Generator),
		logger:    logger,
	}, nil
}

// Answer runs the pipeline for one question. On failure the returned error
// is always a *Failure carrying the stage and stable kind.
func (e *Engine) Answer(ctx context.Context, question string) (*Answer, error) {
	requestID := uuid.NewString()
	log := e.logger.With(zap.String("request_id", requestID))
	log.Debug("answering question", zap.Int("question_len", len(question)))

	queryVector, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return nil, e.fail(log, StageEmbedding, err)
	}
	log.Debug("embedded query", zap.Int("dimension", len(queryVector)))

	results, err := e.retriever.Retrieve(ctx, question, queryVector, e.config.TopK)
	if err != nil {
		return nil, e.fail(log, StageRetrieving, err)
	}
	log.Debug("retrieved context", zap.Int("chunks", len(results)))

	// Zero results is not a failure: the prompt carries an explicit
	// no-context marker and the model answers from general knowledge or
	// declines.
	prompt, err := e.assembler.Assemble(question, results)
	if err != nil {
		return nil, e.fail(log, StageAssembling, err)
	}
	rendered := prompt.Render()
	log.Debug("assembled prompt",
		zap.Int("prompt_len", len(rendered)),
		zap.Int("used_chunks", len(prompt.UsedChunkIDs)))

	text, err := e.generator.Generate(ctx, rendered)
	if err != nil {
		return nil, e.fail(log, StageGenerating, err)
	}
	log.Debug("generated answer", zap.Int("answer_len", len(text)))

	return &Answer{
		ID:           requestID,
		Text:         text,
		UsedChunkIDs: prompt.UsedChunkIDs,
		Sources:      prompt.Sources,
		Model:        e.config.Model,
		GeneratedAt:  time.Now().UTC(),
	}, nil
}

// fail maps a component error to the terminal FAILED outcome, preserving
// the originating kind for the caller.
func (e *Engine) fail(log *zap.Logger, stage Stage, err error) *Failure {
	kind := Classify(err)
	f := &Failure{
		Stage:   stage,
		Kind:    kind,
		Message: messageFor(kind),
		err:     err,
	}
	log.Warn("request failed",
		zap.String("stage", string(stage)),
		zap.String("kind", string(kind)),
		zap.Error(err))
	return f
}

// messageFor keeps caller-visible messages stable and free of internal
// detail.
func messageFor(kind Kind) string {
	switch kind {
	case KindCorpusLoad:
		return "the document corpus could not be loaded"
	case KindEmptyStore:
		return "the document store holds no chunks; load a corpus first"
	case KindEmbedding:
		return "the question could not be embedded; it may be empty or too long"
	case KindRetrieval:
		return "context retrieval failed"
	case KindPromptTooLarge:
		return "the question exceeds the configured prompt budget"
	case KindGenerationTimeout:
		return "answer generation timed out"
	case KindGenerationService:
		return "the language model service failed"
	case KindCanceled:
		return "the request was canceled"
	default:
		return "internal error"
	}
}
