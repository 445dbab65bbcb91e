package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/lantern-labs/lantern/internal/config"
	"github.com/lantern-labs/lantern/internal/corpus"
	"github.com/lantern-labs/lantern/internal/ingest"
	"github.com/lantern-labs/lantern/internal/rag"
)

// embedBatchSize bounds how many chunk texts go into one embeddings call.
const embedBatchSize = 64

var ingestOut string

var ingestCmd = &cobra.Command{
	Use:   "ingest [directory]",
	Short: "Build a corpus from a directory of documents",
	Long: `Extract, chunk, and embed the documents in a directory.

Supported formats: .pdf, .txt, .md. Unsupported files are skipped.

With the memory backend the corpus is written as JSON Lines to the output
path (one chunk per line). With the Milvus backend chunks are inserted
directly into the configured collection.

Required environment variables:
  OPENAI_API_KEY     - OpenAI API key for embeddings

Examples:
  lantern ingest ./docs
  lantern ingest ./docs --out corpus.jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringVar(&ingestOut, "out", "", "Output corpus path (default: configured corpus path)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	dir := args[0]
	ctx := context.Background()

	var (
		headerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F780FF")).Bold(true)
		progressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6272A4")).Italic(true)
		errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555")).Bold(true)
		okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#50FA7B"))
	)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("%s %w", errorStyle.Render("Config error:"), err)
	}
	if ingestOut != "" {
		cfg.CorpusPath = ingestOut
	}

	embedder, err := rag.NewOpenAIEmbedder(cfg.EmbeddingModel, cfg.EmbeddingDimension, 0)
	if err != nil {
		return fmt.Errorf("%s %w", errorStyle.Render("Error:"), err)
	}

	fmt.Println(headerStyle.Render("Ingesting documents from " + dir))

	chunkerCfg := ingest.ChunkerConfig{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap}
	var chunks []corpus.Chunk
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		text, err := ingest.ExtractFile(path)
		if errors.Is(err, ingest.ErrUnsupportedFormat) {
			return nil
		}
		if err != nil {
			return err
		}

		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			rel = filepath.Base(path)
		}
		docID := documentID(rel)
		title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

		docChunks := ingest.BuildChunks(docID, title, text, chunkerCfg)
		fmt.Println(progressStyle.Render(fmt.Sprintf("  %s: %d chunks", rel, len(docChunks))))
		chunks = append(chunks, docChunks...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s %w", errorStyle.Render("Error:"), err)
	}
	if len(chunks) == 0 {
		return fmt.Errorf("%s no supported documents found in %s", errorStyle.Render("Error:"), dir)
	}

	fmt.Println(progressStyle.Render(fmt.Sprintf("→ Embedding %d chunks...", len(chunks))))
	if err := embedChunks(ctx, embedder, chunks); err != nil {
		return fmt.Errorf("%s %w", errorStyle.Render("Error:"), err)
	}

	if cfg.StoreBackend == config.BackendMilvus {
		store, err := corpus.NewMilvusStore(ctx, corpus.MilvusConfig{
			Address:        cfg.MilvusAddress,
			CollectionName: cfg.MilvusCollection,
			Dimension:      cfg.EmbeddingDimension,
			Metric:         cfg.SimilarityMetric,
			M:              16,
			EfConstruction: 256,
		})
		if err != nil {
			return fmt.Errorf("%s %w", errorStyle.Render("Error:"), err)
		}
		defer store.Close()

		if err := store.Insert(ctx, chunks); err != nil {
			return fmt.Errorf("%s %w", errorStyle.Render("Error:"), err)
		}
		fmt.Println(okStyle.Render(fmt.Sprintf("✓ Inserted %d chunks into %s", len(chunks), cfg.MilvusCollection)))
		return nil
	}

	if err := writeCorpus(cfg.CorpusPath, chunks); err != nil {
		return fmt.Errorf("%s %w", errorStyle.Render("Error:"), err)
	}
	fmt.Println(okStyle.Render(fmt.Sprintf("✓ Wrote %d chunks to %s", len(chunks), cfg.CorpusPath)))
	return nil
}

// embedChunks fills in chunk embeddings in batches.
func embedChunks(ctx context.Context, embedder rag.Embedder, chunks []corpus.Chunk) error {
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}
		vectors, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		for i, v := range vectors {
			chunks[start+i].Embedding = v
		}
	}
	return nil
}

// writeCorpus writes chunks as JSON Lines, one chunk per line.
func writeCorpus(path string, chunks []corpus.Chunk) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	enc := json.NewEncoder(f)
	for _, c := range chunks {
		if err := enc.Encode(c); err != nil {
			f.Close()
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return f.Close()
}

// documentID derives a stable document identifier from the file's relative
// path: lowercase, path separators and spaces become dashes, extension
// dropped.
func documentID(rel string) string {
	id := strings.TrimSuffix(rel, filepath.Ext(rel))
	id = strings.ToLower(id)
	id = strings.NewReplacer("/", "-", "\\", "-", " ", "-").Replace(id)
	return id
}
