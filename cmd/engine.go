package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lantern-labs/lantern/internal/config"
	"github.com/lantern-labs/lantern/internal/corpus"
	"github.com/lantern-labs/lantern/internal/rag"
)

// buildStore creates the configured store backend. For the in-memory
// backend it loads the corpus file and returns a reload function that
// re-reads it with an atomic snapshot swap; Milvus owns its own data and
// returns no reload function.
func buildStore(ctx context.Context, cfg config.Config) (corpus.Store, func(context.Context) error, error) {
	switch cfg.StoreBackend {
	case config.BackendMilvus:
		store, err := corpus.NewMilvusStore(ctx, corpus.MilvusConfig{
			Address:        cfg.MilvusAddress,
			CollectionName: cfg.MilvusCollection,
			Dimension:      cfg.EmbeddingDimension,
			Metric:         cfg.SimilarityMetric,
			M:              16,
			EfConstruction: 256,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to Milvus: %w", err)
		}
		return store, nil, nil

	default:
		store := corpus.NewMemoryStore(cfg.EmbeddingDimension)
		if err := store.LoadFile(cfg.CorpusPath); err != nil {
			return nil, nil, err
		}
		reload := func(context.Context) error {
			return store.LoadFile(cfg.CorpusPath)
		}
		return store, reload, nil
	}
}

// buildEngine wires the OpenAI-backed embedder and LLM into an engine over
// the given store.
func buildEngine(cfg config.Config, store corpus.Store, logger *zap.Logger) (*rag.Engine, error) {
	embedder, err := rag.NewOpenAIEmbedder(cfg.EmbeddingModel, cfg.EmbeddingDimension, cfg.MaxQueryLength)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	llm, err := rag.NewOpenAILLM(rag.LLMConfig{
		Model:       cfg.GenerationModel,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM: %w", err)
	}

	engineCfg := rag.EngineConfig{
		TopK: cfg.TopK,
		Retriever: rag.RetrieverConfig{
			Metric:        cfg.SimilarityMetric,
			Hybrid:        cfg.HybridSearch,
			KeywordWeight: cfg.KeywordWeight,
			VectorWeight:  cfg.VectorWeight,
		},
		MaxPromptLength: cfg.MaxPromptLength,
		Generator: rag.GeneratorConfig{
			Timeout:        cfg.GenerationTimeout,
			RetryAttempts:  cfg.RetryAttempts,
			InitialBackoff: rag.DefaultGeneratorConfig().InitialBackoff,
		},
		Model: cfg.GenerationModel,
	}

	engine, err := rag.NewEngine(engineCfg, embedder, store, llm, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	return engine, nil
}
