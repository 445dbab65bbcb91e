package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lantern-labs/lantern/internal/config"
	"github.com/lantern-labs/lantern/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP query API",
	Long: `Run the HTTP server exposing the query engine.

Endpoints:
  POST /api/query   - answer a question ({"question": "..."})
  POST /api/reload  - reload the corpus file (memory backend only)
  GET  /healthz     - liveness check

Required environment variables:
  OPENAI_API_KEY     - OpenAI API key for embeddings and generation`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: configured listen address)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.ListenAddr = serveAddr
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	store, reload, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	engine, err := buildEngine(cfg, store, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.New(engine, reload, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Generation can legitimately run for the full configured timeout
		// plus retries; leave headroom on top of it.
		WriteTimeout: cfg.GenerationTimeout*time.Duration(cfg.RetryAttempts+1) + 30*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr), zap.String("backend", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
