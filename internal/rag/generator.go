package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	retry "github.com/sethvargo/go-retry"
)

// GeneratorConfig controls timeout and retry behavior around the LLM call.
type GeneratorConfig struct {
	// Timeout bounds each individual generation attempt.
	Timeout time.Duration

	// RetryAttempts is the number of additional attempts after the first,
	// applied only to transient failures (timeouts, service errors). Zero
	// disables retry.
	RetryAttempts int

	// InitialBackoff seeds the exponential backoff between attempts.
	InitialBackoff time.Duration
}

// DefaultGeneratorConfig returns the default timeout and bounded retry
// policy.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Timeout:        30 * time.Second,
		RetryAttempts:  2,
		InitialBackoff: 250 * time.Millisecond,
	}
}

// Generator wraps the external LLM capability with a per-attempt timeout and
// a bounded exponential-backoff retry for transient failures. Malformed
// input is never retried.
type Generator struct {
	llm    LLM
	config GeneratorConfig
}

// NewGenerator creates a generator around the given LLM implementation.
func NewGenerator(llm LLM, config GeneratorConfig) *Generator {
	if config.Timeout <= 0 {
		config.Timeout = DefaultGeneratorConfig().Timeout
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = DefaultGeneratorConfig().InitialBackoff
	}
	return &Generator{llm: llm, config: config}
}

// Generate invokes the LLM with the rendered prompt and returns its text.
// Failures surface as ErrGenerationTimeout or ErrGenerationService after the
// retry budget is exhausted; caller cancellation surfaces as the context's
// own error.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.llm == nil {
		return "", fmt.Errorf("%w: LLM is required", ErrGenerationService)
	}
	if prompt == "" {
		return "", ErrInvalidPrompt
	}

	var text string
	var lastErr error

	attempt := func(ctx context.Context) error {
		out, err := g.generateOnce(ctx, prompt)
		if err != nil {
			lastErr = err
			// Caller cancellation is permanent; everything else that
			// reaches here is transient by construction.
			if ctx.Err() != nil {
				return err
			}
			return retry.RetryableError(err)
		}
		text = out
		return nil
	}

	b := retry.NewExponential(g.config.InitialBackoff)
	if err := retry.Do(ctx, retry.WithMaxRetries(uint64(g.config.RetryAttempts), b), attempt); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if lastErr != nil {
			return "", lastErr
		}
		return "", err
	}
	return text, nil
}

// generateOnce runs a single attempt under the configured timeout and
// classifies its failure.
func (g *Generator) generateOnce(ctx context.Context, prompt string) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	text, err := g.llm.Generate(attemptCtx, prompt)
	if err == nil {
		return text, nil
	}

	// The caller abandoning the request is not a generation failure.
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "", fmt.Errorf("%w: after %s", ErrGenerationTimeout, g.config.Timeout)
	}
	return "", fmt.Errorf("%w: %v", ErrGenerationService, err)
}
