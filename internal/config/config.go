// Package config loads the engine's configuration from the environment,
// with .env support and explicit validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/lantern-labs/lantern/internal/corpus"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendMilvus = "milvus"
)

// Config is the complete engine configuration. All fields are settable
// through LANTERN_* environment variables; unset fields take the defaults
// from Default.
type Config struct {
	// Embedding
	EmbeddingModel     string
	EmbeddingDimension int
	MaxQueryLength     int

	// Retrieval
	SimilarityMetric corpus.Metric
	TopK             int
	HybridSearch     bool
	KeywordWeight    float64
	VectorWeight     float64

	// Prompt
	MaxPromptLength int

	// Generation
	GenerationModel   string
	GenerationTimeout time.Duration
	RetryAttempts     int
	Temperature       float32
	MaxTokens         int

	// Corpus
	StoreBackend     string
	CorpusPath       string
	MilvusAddress    string
	MilvusCollection string

	// Ingestion
	ChunkSize    int
	ChunkOverlap int

	// HTTP
	ListenAddr string
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		EmbeddingModel:     "text-embedding-3-large",
		EmbeddingDimension: 3072,
		MaxQueryLength:     2000,
		SimilarityMetric:   corpus.MetricCosine,
		TopK:               5,
		HybridSearch:       false,
		KeywordWeight:      0.3,
		VectorWeight:       0.7,
		MaxPromptLength:    12000,
		GenerationModel:    "gpt-4o",
		GenerationTimeout:  30 * time.Second,
		RetryAttempts:      2,
		Temperature:        0,
		MaxTokens:          2000,
		StoreBackend:       BackendMemory,
		CorpusPath:         "corpus.jsonl",
		MilvusAddress:      "localhost:19530",
		MilvusCollection:   "lantern_chunks",
		ChunkSize:          1200,
		ChunkOverlap:       200,
		ListenAddr:         ":8080",
	}
}

// Load reads configuration from the environment on top of the defaults.
// A .env file is honored when present but never overrides set variables.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	cfg.EmbeddingModel = getString("LANTERN_EMBEDDING_MODEL", cfg.EmbeddingModel)
	cfg.EmbeddingDimension = getInt("LANTERN_EMBEDDING_DIMENSION", cfg.EmbeddingDimension)
	cfg.MaxQueryLength = getInt("LANTERN_MAX_QUERY_LENGTH", cfg.MaxQueryLength)
	cfg.SimilarityMetric = corpus.Metric(getString("LANTERN_SIMILARITY_METRIC", string(cfg.SimilarityMetric)))
	cfg.TopK = getInt("LANTERN_TOP_K", cfg.TopK)
	cfg.HybridSearch = getBool("LANTERN_HYBRID_SEARCH", cfg.HybridSearch)
	cfg.KeywordWeight = getFloat("LANTERN_KEYWORD_WEIGHT", cfg.KeywordWeight)
	cfg.VectorWeight = getFloat("LANTERN_VECTOR_WEIGHT", cfg.VectorWeight)
	cfg.MaxPromptLength = getInt("LANTERN_MAX_PROMPT_LENGTH", cfg.MaxPromptLength)
	cfg.GenerationModel = getString("LANTERN_GENERATION_MODEL", cfg.GenerationModel)
	cfg.GenerationTimeout = getDuration("LANTERN_GENERATION_TIMEOUT_MS", cfg.GenerationTimeout)
	cfg.RetryAttempts = getInt("LANTERN_RETRY_ATTEMPTS", cfg.RetryAttempts)
	cfg.Temperature = float32(getFloat("LANTERN_TEMPERATURE", float64(cfg.Temperature)))
	cfg.MaxTokens = getInt("LANTERN_MAX_TOKENS", cfg.MaxTokens)
	cfg.StoreBackend = getString("LANTERN_STORE_BACKEND", cfg.StoreBackend)
	cfg.CorpusPath = getString("LANTERN_CORPUS_PATH", cfg.CorpusPath)
	cfg.MilvusAddress = getString("MILVUS_ADDRESS", cfg.MilvusAddress)
	cfg.MilvusCollection = getString("MILVUS_COLLECTION", cfg.MilvusCollection)
	cfg.ChunkSize = getInt("LANTERN_CHUNK_SIZE", cfg.ChunkSize)
	cfg.ChunkOverlap = getInt("LANTERN_CHUNK_OVERLAP", cfg.ChunkOverlap)
	cfg.ListenAddr = getString("LANTERN_LISTEN_ADDR", cfg.ListenAddr)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	if c.EmbeddingModel == "" {
		return fmt.Errorf("embedding model cannot be empty")
	}
	if c.EmbeddingDimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.EmbeddingDimension)
	}
	if !c.SimilarityMetric.Valid() {
		return fmt.Errorf("similarity metric must be %q or %q, got %q",
			corpus.MetricCosine, corpus.MetricDot, c.SimilarityMetric)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", c.TopK)
	}
	if c.MaxPromptLength <= 0 {
		return fmt.Errorf("max prompt length must be positive, got %d", c.MaxPromptLength)
	}
	if c.KeywordWeight < 0 || c.VectorWeight < 0 {
		return fmt.Errorf("retrieval weights cannot be negative")
	}
	if c.HybridSearch && c.KeywordWeight+c.VectorWeight <= 0 {
		return fmt.Errorf("hybrid retrieval weights must sum to a positive value")
	}
	if c.GenerationTimeout <= 0 {
		return fmt.Errorf("generation timeout must be positive, got %s", c.GenerationTimeout)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry attempts cannot be negative, got %d", c.RetryAttempts)
	}
	if c.StoreBackend != BackendMemory && c.StoreBackend != BackendMilvus {
		return fmt.Errorf("store backend must be %q or %q, got %q", BackendMemory, BackendMilvus, c.StoreBackend)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk overlap must be in [0, chunk size), got %d", c.ChunkOverlap)
	}
	return nil
}

func getString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getDuration reads a millisecond count.
func getDuration(key string, fallback time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return fallback
}
