package rag

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/lantern-labs/lantern/internal/corpus"
)

// mockEmbedder returns a fixed vector for every text.
type mockEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.vector, nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v, err := m.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (m *mockEmbedder) Model() string  { return "mock-embedder" }
func (m *mockEmbedder) Dimension() int { return len(m.vector) }

func testEngineConfig() EngineConfig {
	cfg := DefaultEngineConfig()
	cfg.TopK = 2
	cfg.Model = "test-model"
	cfg.Generator = GeneratorConfig{
		Timeout:        50 * time.Millisecond,
		RetryAttempts:  1,
		InitialBackoff: time.Millisecond,
	}
	return cfg
}

func testEngine(t *testing.T, store corpus.Store, llm LLM) *Engine {
	t.Helper()
	engine, err := NewEngine(testEngineConfig(), &mockEmbedder{vector: []float32{1, 0}}, store, llm, nil)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return engine
}

func threeChunkStore(t *testing.T) *corpus.MemoryStore {
	t.Helper()
	store := corpus.NewMemoryStore(2)
	err := store.Replace([]corpus.Chunk{
		{ID: "a-0", Text: "alpha facts", Embedding: []float32{1, 0},
			Source: map[string]string{corpus.SourceDocumentID: "doc-a", corpus.SourceTitle: "Alpha"}},
		{ID: "b-0", Text: "beta facts", Embedding: []float32{1, 1},
			Source: map[string]string{corpus.SourceDocumentID: "doc-b", corpus.SourceTitle: "Beta"}},
		{ID: "c-0", Text: "gamma facts", Embedding: []float32{0, 1},
			Source: map[string]string{corpus.SourceDocumentID: "doc-c", corpus.SourceTitle: "Gamma"}},
	})
	if err != nil {
		t.Fatalf("failed to load store: %v", err)
	}
	return store
}

func TestEngineAnswer(t *testing.T) {
	mock := NewMockLLM("a grounded answer")
	engine := testEngine(t, threeChunkStore(t), mock)

	answer, err := engine.Answer(context.Background(), "what are the alpha facts?")
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}

	if answer.Text != "a grounded answer" {
		t.Errorf("expected the LLM's text, got %q", answer.Text)
	}
	if answer.ID == "" {
		t.Error("expected a request id")
	}
	if answer.Model != "test-model" {
		t.Errorf("expected model %q, got %q", "test-model", answer.Model)
	}
	if answer.GeneratedAt.IsZero() {
		t.Error("expected a generation timestamp")
	}
	if want := []string{"a-0", "b-0"}; !reflect.DeepEqual(answer.UsedChunkIDs, want) {
		t.Errorf("expected used chunk ids %v, got %v", want, answer.UsedChunkIDs)
	}
	if want := []string{"Alpha", "Beta"}; !reflect.DeepEqual(answer.Sources, want) {
		t.Errorf("expected sources %v, got %v", want, answer.Sources)
	}

	// The prompt sent to the model must contain exactly the used chunks.
	if !strings.Contains(mock.LastPrompt, "alpha facts") || !strings.Contains(mock.LastPrompt, "beta facts") {
		t.Error("prompt is missing retrieved context")
	}
	if strings.Contains(mock.LastPrompt, "gamma facts") {
		t.Error("prompt contains a chunk outside topK")
	}
}

func TestEngineAnswerDeterministicContext(t *testing.T) {
	engine := testEngine(t, threeChunkStore(t), NewMockLLM("answer"))

	first, err := engine.Answer(context.Background(), "same question")
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	second, err := engine.Answer(context.Background(), "same question")
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}

	if !reflect.DeepEqual(first.UsedChunkIDs, second.UsedChunkIDs) {
		t.Errorf("identical queries over an unchanged corpus used different chunks: %v vs %v",
			first.UsedChunkIDs, second.UsedChunkIDs)
	}
	if first.ID == second.ID {
		t.Error("each request must get its own id")
	}
}

func TestEngineAnswerWithLLMFunc(t *testing.T) {
	// The stub reports how much context it saw, proving the rendered prompt
	// reaches the LLM intact.
	llm := LLMFunc(func(ctx context.Context, prompt string) (string, error) {
		return fmt.Sprintf("prompt had %d characters", len(prompt)), nil
	})
	engine := testEngine(t, threeChunkStore(t), llm)

	answer, err := engine.Answer(context.Background(), "question")
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if len(answer.UsedChunkIDs) != 2 {
		t.Errorf("expected 2 used chunks, got %d", len(answer.UsedChunkIDs))
	}
	if !strings.HasPrefix(answer.Text, "prompt had ") {
		t.Errorf("unexpected stub answer %q", answer.Text)
	}
}

func TestEngineFailureStagesAndKinds(t *testing.T) {
	emptyStore := corpus.NewMemoryStore(2)

	tests := []struct {
		name      string
		embedder  Embedder
		store     corpus.Store
		llm       LLM
		maxPrompt int
		wantStage Stage
		wantKind  Kind
	}{
		{
			name:      "embedding failure",
			embedder:  &mockEmbedder{err: fmt.Errorf("%w: too long", ErrEmbedding)},
			store:     threeChunkStore(t),
			llm:       NewMockLLM("unused"),
			wantStage: StageEmbedding,
			wantKind:  KindEmbedding,
		},
		{
			name:      "empty store",
			embedder:  &mockEmbedder{vector: []float32{1, 0}},
			store:     emptyStore,
			llm:       NewMockLLM("unused"),
			wantStage: StageRetrieving,
			wantKind:  KindEmptyStore,
		},
		{
			name:      "prompt too large",
			embedder:  &mockEmbedder{vector: []float32{1, 0}},
			store:     threeChunkStore(t),
			llm:       NewMockLLM("unused"),
			maxPrompt: 10,
			wantStage: StageAssembling,
			wantKind:  KindPromptTooLarge,
		},
		{
			name:      "generation service failure",
			embedder:  &mockEmbedder{vector: []float32{1, 0}},
			store:     threeChunkStore(t),
			llm:       NewMockLLMWithError(errors.New("upstream down")),
			wantStage: StageGenerating,
			wantKind:  KindGenerationService,
		},
		{
			name:      "generation timeout",
			embedder:  &mockEmbedder{vector: []float32{1, 0}},
			store:     threeChunkStore(t),
			llm:       &MockLLM{Response: "late", Delay: time.Second},
			wantStage: StageGenerating,
			wantKind:  KindGenerationTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testEngineConfig()
			if tt.maxPrompt > 0 {
				cfg.MaxPromptLength = tt.maxPrompt
			}
			engine, err := NewEngine(cfg, tt.embedder, tt.store, tt.llm, nil)
			if err != nil {
				t.Fatalf("NewEngine failed: %v", err)
			}

			_, err = engine.Answer(context.Background(), "a question")
			var failure *Failure
			if !errors.As(err, &failure) {
				t.Fatalf("expected a *Failure, got %v", err)
			}
			if failure.Stage != tt.wantStage {
				t.Errorf("expected stage %q, got %q", tt.wantStage, failure.Stage)
			}
			if failure.Kind != tt.wantKind {
				t.Errorf("expected kind %q, got %q", tt.wantKind, failure.Kind)
			}
			if failure.Message == "" {
				t.Error("expected a caller-facing message")
			}
		})
	}
}

func TestEngineAnswerCanceled(t *testing.T) {
	engine := testEngine(t, threeChunkStore(t), &MockLLM{Response: "late", Delay: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Answer(ctx, "a question")
	var failure *Failure
	if !errors.As(err, &failure) {
		t.Fatalf("expected a *Failure, got %v", err)
	}
	if failure.Kind != KindCanceled {
		t.Errorf("expected kind %q, got %q", KindCanceled, failure.Kind)
	}
	if !errors.Is(err, context.Canceled) {
		t.Error("the failure should unwrap to context.Canceled")
	}
}

func TestNewEngineValidation(t *testing.T) {
	store := corpus.NewMemoryStore(2)
	embedder := &mockEmbedder{vector: []float32{1, 0}}
	llm := NewMockLLM("ok")

	if _, err := NewEngine(testEngineConfig(), nil, store, llm, nil); err == nil {
		t.Error("expected an error for a nil embedder")
	}
	if _, err := NewEngine(testEngineConfig(), embedder, store, nil, nil); err == nil {
		t.Error("expected an error for a nil llm")
	}
	cfg := testEngineConfig()
	cfg.TopK = 0
	if _, err := NewEngine(cfg, embedder, store, llm, nil); err == nil {
		t.Error("expected an error for topK = 0")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{corpus.ErrCorpusLoad, KindCorpusLoad},
		{corpus.ErrDimensionMismatch, KindCorpusLoad},
		{ErrEmptyStore, KindEmptyStore},
		{fmt.Errorf("wrapped: %w", ErrEmbedding), KindEmbedding},
		{ErrPromptTooLarge, KindPromptTooLarge},
		{ErrGenerationTimeout, KindGenerationTimeout},
		{ErrGenerationService, KindGenerationService},
		{context.Canceled, KindCanceled},
		{context.DeadlineExceeded, KindCanceled},
		{errors.New("something else"), KindInternal},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v): expected %q, got %q", tt.err, tt.want, got)
		}
	}
}
