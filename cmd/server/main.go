package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/conflux-rag/conflux/internal/api"
	"github.com/conflux-rag/conflux/internal/chunker"
	"github.com/conflux-rag/conflux/internal/config"
	"github.com/conflux-rag/conflux/internal/confluence"
	"github.com/conflux-rag/conflux/internal/llm"
	"github.com/conflux-rag/conflux/internal/pipeline"
	"github.com/conflux-rag/conflux/internal/vectorstore"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize clients.
	cf := confluence.NewClient(cfg.ConfluenceURL, cfg.ConfluenceUsername, cfg.ConfluenceAPIKey)
	lc := llm.NewClient(cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.ChatModel, cfg.EmbeddingDim)
	vs := vectorstore.NewStore(cfg.QdrantURL, cfg.QdrantAPIKey, cfg.QdrantCollection, cfg.EmbeddingDim)

	ck, err := chunker.New(cfg.ChunkLevels, log)
	if err != nil {
		log.Error("invalid chunk levels", "error", err)
		os.Exit(1)
	}

	if err := vs.EnsureCollection(ctx); err != nil {
		log.Error("failed to ensure collection", "error", err)
		os.Exit(1)
	}

	// Initialize pipeline.
	orch := pipeline.NewOrchestrator(cfg, cf, ck, lc, vs, log)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(orch, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		cf.Close()
	}()

	log.Info("starting conflux", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
