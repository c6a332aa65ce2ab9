package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/csw48/AI-autonomous-platform/api"
	"github.com/csw48/AI-autonomous-platform/db"
	"github.com/csw48/AI-autonomous-platform/internal/chunker"
	"github.com/csw48/AI-autonomous-platform/internal/config"
	"github.com/csw48/AI-autonomous-platform/internal/embedding"
	"github.com/csw48/AI-autonomous-platform/internal/extract"
	"github.com/csw48/AI-autonomous-platform/internal/ingest"
	"github.com/csw48/AI-autonomous-platform/internal/rag"
	"github.com/csw48/AI-autonomous-platform/internal/store"
)

// runServe wires the full pipeline and starts the HTTP API server.
func runServe() error {
	logger := initLogger()
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting docindex", "version", AppVersion)

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("creating connection pool: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return fmt.Errorf("creating embedding provider: %w", err)
	}
	embedClient, err := embedding.NewClient(provider, cfg.EmbeddingDimension, embedding.Config{}, logger)
	if err != nil {
		return fmt.Errorf("creating embedding client: %w", err)
	}

	splitter, err := chunker.New(chunker.Config{
		MaxSize: cfg.ChunkSize,
		Overlap: cfg.ChunkOverlap,
	})
	if err != nil {
		return fmt.Errorf("creating chunker: %w", err)
	}

	st := store.New(pool, logger)
	formats := extract.NewRegistry()
	coordinator := ingest.New(st, formats, splitter, embedClient, cfg.MaxConcurrentIngests, logger)
	defer coordinator.Close()

	retriever := rag.NewRetriever(st, embedClient, rag.Weights{
		Vector:  cfg.VectorWeight,
		Keyword: cfg.KeywordWeight,
	}, logger)
	assembler := rag.NewAssembler(cfg.ContextTokenBudget, nil)

	documents := api.NewDocumentsHandler(coordinator, st, formats, cfg.MaxUploadBytes, logger)
	search := api.NewSearchHandler(retriever, assembler, st, coordinator, logger)
	server := api.NewServer(pool, documents, search, logger)

	return server.Run(ctx, cfg.ListenAddr)
}

// buildProvider picks the embedding backend from configuration.
func buildProvider(cfg *config.Config) (embedding.Provider, error) {
	switch cfg.EmbeddingProvider {
	case config.ProviderOpenAI:
		return embedding.NewOpenAI(cfg.EmbeddingModel, cfg.EmbeddingDimension)
	case config.ProviderOllama:
		return embedding.NewOllama(cfg.OllamaHost, cfg.EmbeddingModel, cfg.EmbeddingDimension), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}
