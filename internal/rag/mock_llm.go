package rag

import (
	"context"
	"time"
)

// MockLLM is a deterministic LLM implementation for testing.
type MockLLM struct {
	// Response is the fixed text returned by Generate.
	Response string

	// Error, if set, is returned by Generate instead of a response.
	Error error

	// Delay makes Generate block before responding, so timeout behavior
	// can be exercised. Cancellation wins over the delay.
	Delay time.Duration

	// LastPrompt stores the most recent prompt passed to Generate.
	LastPrompt string

	// Calls counts Generate invocations, including failed ones.
	Calls int
}

// NewMockLLM creates a mock LLM with the given fixed response.
func NewMockLLM(response string) *MockLLM {
	return &MockLLM{Response: response}
}

// NewMockLLMWithError creates a mock LLM that always returns an error.
func NewMockLLMWithError(err error) *MockLLM {
	return &MockLLM{Error: err}
}

// Generate returns the configured response, honoring Delay and cancellation.
func (m *MockLLM) Generate(ctx context.Context, prompt string) (string, error) {
	m.Calls++
	m.LastPrompt = prompt

	if m.Delay > 0 {
		t := time.NewTimer(m.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.C:
		}
	}

	if m.Error != nil {
		return "", m.Error
	}
	return m.Response, nil
}
