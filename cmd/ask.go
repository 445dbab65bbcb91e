package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lantern-labs/lantern/internal/config"
	"github.com/lantern-labs/lantern/internal/rag"
)

var (
	askTopK    int
	askHybrid  bool
	askVerbose bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question about the corpus",
	Long: `Ask a natural language question about the loaded document corpus.

This command:
1. Loads the corpus into the configured store
2. Retrieves the most relevant chunks for your question
3. Generates a grounded answer using an LLM (OpenAI)

Required environment variables:
  OPENAI_API_KEY     - OpenAI API key for embeddings and generation

Examples:
  lantern ask "What does the architecture chapter say about caching?"
  lantern ask "Summarize the findings on topic A" --topk 5 --hybrid`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().IntVar(&askTopK, "topk", 0, "Number of chunks to retrieve (default: configured top_k)")
	askCmd.Flags().BoolVar(&askHybrid, "hybrid", false, "Blend keyword (BM25) search with vector similarity")
	askCmd.Flags().BoolVar(&askVerbose, "verbose", false, "Show progress and the sources used")
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := args[0]
	ctx := context.Background()

	// Styling
	var (
		headerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F780FF")).Bold(true)
		questionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BE9FD")).Italic(true)
		answerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#E9E9F4"))
		progressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6272A4")).Italic(true)
		errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555")).Bold(true)
		sourceStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#50FA7B"))
	)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("%s %w", errorStyle.Render("Config error:"), err)
	}
	if askTopK > 0 {
		cfg.TopK = askTopK
	}
	if askHybrid {
		cfg.HybridSearch = true
	}

	logger := zap.NewNop()
	if askVerbose {
		logger, _ = zap.NewDevelopment()
	}

	if askVerbose {
		fmt.Println(progressStyle.Render("→ Loading corpus..."))
	}
	store, _, err := buildStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("%s %w", errorStyle.Render("Error:"), err)
	}
	defer store.Close()

	engine, err := buildEngine(cfg, store, logger)
	if err != nil {
		return fmt.Errorf("%s %w", errorStyle.Render("Error:"), err)
	}

	fmt.Println()
	fmt.Println(headerStyle.Render("Question:"))
	fmt.Println(questionStyle.Render(question))
	fmt.Println()

	if askVerbose {
		fmt.Println(progressStyle.Render("→ Retrieving context and generating answer..."))
	}

	answer, err := engine.Answer(ctx, question)
	if err != nil {
		var failure *rag.Failure
		if errors.As(err, &failure) {
			return fmt.Errorf("%s %s", errorStyle.Render("Error:"), failure.Message)
		}
		return fmt.Errorf("%s %w", errorStyle.Render("Error:"), err)
	}

	fmt.Println(headerStyle.Render("Answer:"))
	fmt.Println()
	fmt.Println(answerStyle.Render(strings.TrimSpace(answer.Text)))
	fmt.Println()

	if len(answer.Sources) > 0 {
		fmt.Println(headerStyle.Render("Sources:"))
		for _, src := range answer.Sources {
			fmt.Println(sourceStyle.Render("  • " + src))
		}
		fmt.Println()
	}

	return nil
}
