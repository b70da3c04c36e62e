package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/apexneural-ramya/notebook-lm-clone/internal/answer"
	"github.com/apexneural-ramya/notebook-lm-clone/internal/api"
	"github.com/apexneural-ramya/notebook-lm-clone/internal/chunker"
	"github.com/apexneural-ramya/notebook-lm-clone/internal/config"
	"github.com/apexneural-ramya/notebook-lm-clone/internal/embeddings"
	"github.com/apexneural-ramya/notebook-lm-clone/internal/ingest"
	"github.com/apexneural-ramya/notebook-lm-clone/internal/logging"
	"github.com/apexneural-ramya/notebook-lm-clone/internal/memory"
	"github.com/apexneural-ramya/notebook-lm-clone/internal/retriever"
	"github.com/apexneural-ramya/notebook-lm-clone/internal/source"
	"github.com/apexneural-ramya/notebook-lm-clone/internal/vectorstore"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the notebookd HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "config file path (default ~/.config/notebookd/config.yaml)")
	return cmd
}

func runServe(configPath string) error {
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting notebookd",
		zap.String("version", version),
		zap.String("commit", gitCommit),
	)

	index, err := vectorstore.New(cfg.VectorStore, logger.Named("vectorstore"))
	if err != nil {
		return fmt.Errorf("creating vector index: %w", err)
	}
	defer func() { _ = index.Close() }()

	embedder, err := embeddings.NewProvider(cfg.Embeddings)
	if err != nil {
		return fmt.Errorf("creating embedding provider: %w", err)
	}
	embedder = embeddings.WithMetrics(embedder)
	defer func() { _ = embedder.Close() }()

	ch, err := chunker.New(cfg.Chunker)
	if err != nil {
		return fmt.Errorf("creating chunker: %w", err)
	}

	registry := source.NewRegistry(vectorstore.NewSourceDeleter(index), logger.Named("registry"))

	pipeline := ingest.NewPipeline(
		registry,
		ch,
		embedder,
		index,
		[]ingest.Extractor{ingest.NewTextExtractor(), ingest.NewPreExtractedExtractor()},
		cfg.Ingest,
		logger.Named("ingest"),
	)

	rt, err := retriever.New(embedder, index, cfg.Retriever, logger.Named("retriever"))
	if err != nil {
		return fmt.Errorf("creating retriever: %w", err)
	}

	mem, err := memory.NewStore(cfg.Memory, logger.Named("memory"))
	if err != nil {
		return fmt.Errorf("creating memory store: %w", err)
	}
	defer func() { _ = mem.Close() }()

	generator, err := answer.NewOpenAIGenerator(cfg.Generator)
	if err != nil {
		return fmt.Errorf("creating generator: %w", err)
	}

	orchestrator := answer.NewOrchestrator(rt, mem, generator, registry, cfg.Answer, logger.Named("answer"))

	server, err := api.NewServer(pipeline, registry, orchestrator, mem, logger.Named("http"), cfg.Server.Host, cfg.Server.Port)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
