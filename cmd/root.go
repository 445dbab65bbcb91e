package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "lantern",
	Short: "Lantern - question answering over a document corpus",
	Long: `Lantern answers natural-language questions about a document corpus using
retrieval-augmented generation (RAG).

It embeds the question, retrieves the most relevant corpus chunks by vector
similarity (optionally blended with keyword search), assembles a bounded
grounded prompt, and generates an answer with a language model, reporting
the sources it used.`,
}

// Execute runs the root command
func Execute() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
