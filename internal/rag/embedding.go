package rag

import (
	"context"
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ErrMissingAPIKey is returned when no OpenAI credential is configured.
var ErrMissingAPIKey = fmt.Errorf("OPENAI_API_KEY environment variable not set")

// Embedder maps text to fixed-length vectors. Implementations must be
// deterministic for a fixed model version and safe for concurrent use.
type Embedder interface {
	// Embed generates the embedding for a single text. It fails with an
	// error wrapping ErrEmbedding on empty or over-length input.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for several texts in one call; used
	// by corpus ingestion.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Model returns the embedding model identifier.
	Model() string

	// Dimension returns the embedding vector dimension.
	Dimension() int
}

// OpenAIEmbedder implements Embedder using OpenAI's embeddings API.
type OpenAIEmbedder struct {
	client      openai.Client
	model       string
	dimension   int
	maxInputLen int
}

// NewOpenAIEmbedder creates an OpenAI embedder. maxInputLen bounds the
// accepted input length in characters; longer inputs are rejected rather
// than silently truncated.
func NewOpenAIEmbedder(model string, dimension, maxInputLen int) (*OpenAIEmbedder, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension %d", dimension)
	}

	return &OpenAIEmbedder{
		client:      openai.NewClient(option.WithAPIKey(apiKey)),
		model:       model,
		dimension:   dimension,
		maxInputLen: maxInputLen,
	}, nil
}

// Model returns the embedding model identifier.
func (e *OpenAIEmbedder) Model() string { return e.model }

// Dimension returns the embedding vector dimension.
func (e *OpenAIEmbedder) Dimension() int { return e.dimension }

func (e *OpenAIEmbedder) checkInput(text string) error {
	if text == "" {
		return fmt.Errorf("%w: empty input", ErrEmbedding)
	}
	if e.maxInputLen > 0 && len(text) > e.maxInputLen {
		return fmt.Errorf("%w: input length %d exceeds maximum %d", ErrEmbedding, len(text), e.maxInputLen)
	}
	return nil
}

// Embed generates the embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.checkInput(text); err != nil {
		return nil, err
	}
	vectors, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for the provided texts in one API call.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no texts provided", ErrEmbedding)
	}
	for _, t := range texts {
		if err := e.checkInput(t); err != nil {
			return nil, err
		}
	}
	return e.embed(ctx, texts)
}

func (e *OpenAIEmbedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model:          e.model,
		Dimensions:     openai.Int(int64(e.dimension)),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrEmbedding, len(texts), len(resp.Data))
	}

	vectors := make([][]float32, len(texts))
	for _, data := range resp.Data {
		// Convert []float64 to []float32
		embedding := make([]float32, len(data.Embedding))
		for j, val := range data.Embedding {
			embedding[j] = float32(val)
		}
		vectors[int(data.Index)] = embedding
	}
	return vectors, nil
}
