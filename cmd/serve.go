package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/studybuddy/studybuddy/internal/api"
	"github.com/studybuddy/studybuddy/internal/blob"
	"github.com/studybuddy/studybuddy/internal/config"
	"github.com/studybuddy/studybuddy/internal/database"
	"github.com/studybuddy/studybuddy/internal/embed"
	"github.com/studybuddy/studybuddy/internal/ingest"
	"github.com/studybuddy/studybuddy/internal/log"
	"github.com/studybuddy/studybuddy/internal/observability"
	"github.com/studybuddy/studybuddy/internal/retrieval"
	"github.com/studybuddy/studybuddy/internal/store"
	"github.com/studybuddy/studybuddy/internal/vector"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(parent context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	logger := log.New(log.Config{Level: log.ParseLevel(cfg.Log.Level), JSON: cfg.Log.JSON})
	logger.Info("starting studybuddy", "version", Version, "config", cfg.String())

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Tracing.Enabled {
		shutdownTracing, err := observability.Setup(ctx, observability.Config{
			Endpoint:    cfg.Tracing.Endpoint,
			Environment: cfg.Tracing.Environment,
			ServiceName: cfg.Tracing.ServiceName,
		}, logger)
		if err != nil {
			return fmt.Errorf("setting up tracing: %w", err)
		}
		defer func() {
			flushCtx, cancelFlush := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelFlush()
			if err := shutdownTracing(flushCtx); err != nil {
				logger.Warn("failed to shut down tracer provider", "error", err)
			}
		}()
	}

	pool, err := database.Connect(ctx, cfg.Database.ConnString())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	repo, err := store.NewStore(pool, logger)
	if err != nil {
		return err
	}

	vectors, err := vector.NewStore(pool, int(cfg.Gemini.Dimension), logger)
	if err != nil {
		return err
	}

	embedder, err := embed.NewGemini(ctx, embed.GeminiConfig{
		APIKey:            cfg.Gemini.APIKey,
		Model:             cfg.Gemini.Model,
		Dimension:         cfg.Gemini.Dimension,
		RequestsPerSecond: cfg.Gemini.RequestsPerSecond,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}

	pipeline, err := ingest.NewPipeline(ingest.Config{
		Store:        repo,
		Embedder:     embedder,
		Index:        vectors,
		ChunkSize:    cfg.Chunking.Size,
		ChunkOverlap: cfg.Chunking.Overlap,
		Concurrency:  cfg.Ingest.Concurrency,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	threshold := float32(cfg.Retrieval.Threshold)
	retriever, err := retrieval.NewService(retrieval.Config{
		Embedder:  embedder,
		Index:     vectors,
		Documents: repo,
		Limit:     cfg.Retrieval.Limit,
		Threshold: &threshold,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	blobs, err := blob.NewFileStore(cfg.Blob.Dir)
	if err != nil {
		return fmt.Errorf("creating blob store: %w", err)
	}

	server := api.NewServer(cfg.Server.Addr, api.Deps{
		Store:         repo,
		Ingest:        pipeline,
		Retrieval:     retriever,
		Vectors:       vectors,
		Blobs:         blobs,
		DB:            pool,
		MaxUploadSize: cfg.Server.MaxUploadSize,
		Logger:        logger,
	})

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
