// Package main provides the RAG server entry point: HTTP API, MCP tools and
// optional GitHub seeding over one in-memory document store.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mernjs/rag-pipeline/internal/api"
	"github.com/mernjs/rag-pipeline/internal/chunker"
	"github.com/mernjs/rag-pipeline/internal/config"
	"github.com/mernjs/rag-pipeline/internal/embedding"
	"github.com/mernjs/rag-pipeline/internal/generation"
	ghclient "github.com/mernjs/rag-pipeline/internal/github"
	"github.com/mernjs/rag-pipeline/internal/indexer"
	mcpserver "github.com/mernjs/rag-pipeline/internal/mcp"
	"github.com/mernjs/rag-pipeline/internal/metadata"
	"github.com/mernjs/rag-pipeline/internal/mirror"
	"github.com/mernjs/rag-pipeline/internal/rag"
	"github.com/mernjs/rag-pipeline/internal/storage"
)

const version = "v0.1.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "rag-server",
	Short: "Document ingestion, semantic search and cited chat",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and MCP server",
	Long: `Starts the server over an empty in-memory document store.

In http mode the JSON API, /health and MCP Streamable HTTP (/mcp) share one
listener. In stdio mode MCP runs over stdin/stdout and the API is still served
on the configured port.

Environment variables:
  OPENAI_API_KEY    OpenAI API key (required)
  OPENAI_BASE_URL   OpenAI-compatible endpoint (optional)
  PORT              HTTP port (default: 8080)
  SERVER_MODE       http | stdio, or true | false (default: http)
  MIRROR_ENABLED    Mirror documents to Qdrant (default: false)
  QDRANT_HOST       Qdrant hostname (default: localhost)
  QDRANT_PORT       Qdrant gRPC port (default: 6334)
  SEED_GITHUB_REPO  owner/repo[/path] to seed a collection from (optional)
  SEED_COLLECTION   Collection for seeded documents (default: docs)
  GITHUB_TOKEN      GitHub token for higher rate limits (optional)
  ENRICH_METADATA   Generate summaries and entity tags on ingest (default: false)
  LOG_LEVEL         debug | info | warn | error (default: info)
  LOG_FORMAT        text | json (default: text)`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to YAML config file (missing file uses defaults)")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	if cfg.Chunk.Overlap > 0 {
		logger.Warn("chunk overlap is configured but chunks never overlap", "overlap", cfg.Chunk.Overlap)
	}

	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	openaiClient, err := embedding.NewClient(embedding.ClientConfig{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
	})
	if err != nil {
		log.Fatalf("failed to create OpenAI client: %v", err)
	}
	embedder := embedding.NewOpenAIEmbedder(openaiClient,
		embedding.WithModel(cfg.OpenAI.EmbeddingModel),
		embedding.WithDimensions(cfg.OpenAI.Dimensions),
		embedding.WithBatchSize(cfg.OpenAI.BatchSize),
	)
	generator := generation.NewOpenAIGenerator(openaiClient.Client(),
		cfg.OpenAI.ChatModel, cfg.OpenAI.MaxTokens, cfg.OpenAI.Temperature)

	store := storage.NewMemoryStore()
	opts := []rag.Option{
		rag.WithChunker(chunker.New(
			chunker.WithMaxLen(cfg.Chunk.MaxLen),
			chunker.WithMinLen(cfg.Chunk.MinLen),
		)),
		rag.WithLogger(logger),
	}

	if cfg.OpenAI.Enrich {
		opts = append(opts, rag.WithEnricher(metadata.NewGenerator(
			openaiClient.Client(), cfg.OpenAI.ChatModel, cfg.OpenAI.EnrichMaxTokens, logger)))
	}

	var checker api.HealthChecker
	if cfg.Mirror.Enabled {
		qdrantStore, writer, err := startMirror(ctx, cfg, logger)
		if err != nil {
			// The in-memory store stays authoritative; run without the mirror.
			logger.Error("mirror disabled, Qdrant unavailable", "error", err)
		} else {
			defer qdrantStore.Close()
			defer func() {
				drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer drainCancel()
				if err := writer.Close(drainCtx); err != nil {
					logger.Error("mirror drain incomplete", "error", err)
				}
			}()
			opts = append(opts, rag.WithMirror(writer))
			checker = qdrantStore
		}
	}

	svc := rag.NewService(store, embedder, generator, opts...)

	mcpCfg := &mcpserver.Config{Library: svc, Version: version}
	if cfg.Seed.Repo != "" {
		fetcher, err := newSeedFetcher(ctx, cfg.Seed)
		if err != nil {
			log.Fatalf("failed to configure seeding: %v", err)
		}
		mcpCfg.Commits = fetcher
		mcpCfg.SeedCollection = cfg.Seed.Collection

		pipeline := indexer.NewPipeline(fetcher, svc, cfg.Seed.Collection, logger)
		go seed(ctx, pipeline, logger)
	}
	server := mcpserver.NewServer(mcpCfg)

	router := api.NewRouter(api.Config{
		Library:        svc,
		Mirror:         checker,
		MCP:            mcpserver.NewHTTPHandler(server, cfg.Server.MCPStateless),
		TopK:           cfg.Retrieval.TopK,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Logger:         logger,
	})

	httpServer := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", httpServer.Addr, "mode", cfg.Server.Mode)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if cfg.Server.Mode == "stdio" {
		logger.Info("starting MCP server (stdio mode)")
		if err := server.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("MCP server error", "error", err)
		}
	} else {
		select {
		case <-ctx.Done():
		case err := <-errCh:
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}

func startMirror(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage.QdrantStorage, *mirror.Writer, error) {
	qdrantStore, err := storage.NewQdrantStorage(ctx, storage.QdrantConfig{
		Host:       cfg.Mirror.Host,
		Port:       cfg.Mirror.Port,
		Collection: cfg.Mirror.Collection,
		Dimension:  cfg.OpenAI.Dimensions,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := qdrantStore.EnsureCollection(ctx); err != nil {
		qdrantStore.Close()
		return nil, nil, fmt.Errorf("ensure collection: %w", err)
	}

	writer := mirror.NewWriter(qdrantStore, mirror.Config{
		QueueSize:    cfg.Mirror.QueueSize,
		WriteTimeout: cfg.Mirror.WriteTimeout,
	}, logger.With("component", "mirror"))

	logger.Info("mirroring to Qdrant", "host", cfg.Mirror.Host, "port", cfg.Mirror.Port, "collection", cfg.Mirror.Collection)
	return qdrantStore, writer, nil
}

func newSeedFetcher(ctx context.Context, seed config.SeedConfig) (*ghclient.Fetcher, error) {
	spec, err := ghclient.ParseRepoSpec(seed.Repo)
	if err != nil {
		return nil, err
	}
	client, err := ghclient.NewClient(ctx, seed.Token)
	if err != nil {
		return nil, fmt.Errorf("create GitHub client: %w", err)
	}
	return ghclient.NewFetcher(client, spec, seed.Extensions), nil
}

func seed(ctx context.Context, pipeline *indexer.Pipeline, logger *slog.Logger) {
	result, err := pipeline.IndexAll(ctx)
	if err != nil {
		logger.Error("seeding failed", "error", err)
		return
	}
	for _, failed := range result.FailedDocs {
		logger.Warn("seed document skipped", "path", failed.Path, "reason", failed.Reason)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	// Logs go to stderr so stdio mode keeps stdout for MCP.
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
