package rag

import (
	"context"
	"errors"
)

var (
	ErrLLMFailed     = errors.New("LLM request failed")
	ErrInvalidConfig = errors.New("invalid LLM configuration")
)

// LLM is the external language-model capability: text in, text out.
// Implementations must be stateless and thread-safe, and must respect
// context cancellation since the generator enforces timeouts through it.
type LLM interface {
	// Generate produces text from a prompt using the configured model.
	Generate(ctx context.Context, prompt string) (string, error)
}

// LLMFunc adapts a function to the LLM interface; handy for test stubs.
type LLMFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls the wrapped function.
func (f LLMFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// LLMConfig holds common configuration options for LLM providers.
type LLMConfig struct {
	// Model specifies the model identifier (e.g., "gpt-4o")
	Model string

	// Temperature controls randomness (0.0 = deterministic)
	Temperature float32

	// MaxTokens limits the response length (0 = use provider default)
	MaxTokens int

	// APIKey is the authentication key for the provider
	APIKey string
}

// DefaultLLMConfig returns sensible defaults for answer generation.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Model:       "gpt-4o",
		Temperature: 0, // model default
		MaxTokens:   2000,
	}
}
