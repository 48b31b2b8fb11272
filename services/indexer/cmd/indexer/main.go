package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"docvault/internal/util"
	"docvault/pkg/ai"
	"docvault/pkg/index"
	"docvault/pkg/queue"
	"docvault/pkg/store"
	"docvault/services/indexer/internal/app"
	"docvault/services/indexer/internal/config"
	"docvault/services/indexer/internal/server"
)

func main() {
	cfg, err := config.Load(config.PathFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, cleanup := util.InitLogger(cfg.LogLevel, "indexer", cfg.LogsDir)
	if cleanup != nil {
		defer cleanup()
	}

	dsn, err := cfg.DatabaseDSN()
	if err != nil {
		util.Fatal("invalid store config", "err", err)
	}
	metric, err := store.ParseMetric(cfg.SimilarityMetric)
	if err != nil {
		util.Fatal("invalid store config", "err", err)
	}
	docs, err := store.NewGormStore(dsn, store.WithEmbeddingDim(cfg.EmbeddingDim), store.WithMetric(metric))
	if err != nil {
		util.Fatal("failed to init store", "err", err)
	}
	defer docs.Close()

	retry := ai.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.RetryMaxAttempts
	embedder, err := ai.NewEmbedder(ai.ProviderConfig{
		Provider:   cfg.EmbeddingProvider,
		BaseURL:    cfg.EmbeddingBaseURL,
		APIKey:     cfg.EmbeddingAPIKey,
		Model:      cfg.EmbeddingModel,
		Dimensions: cfg.EmbeddingDim,
		Timeout:    cfg.UpstreamTimeout(),
		Retry:      retry,
	})
	if err != nil {
		util.Fatal("failed to init embedder", "err", err)
	}
	indexer, err := index.New(docs, embedder, index.Options{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		BatchSize:    cfg.EmbeddingBatchSize,
		Concurrency:  cfg.EmbeddingConcurrency,
		Logger:       logger,
	})
	if err != nil {
		util.Fatal("failed to init indexer", "err", err)
	}

	jobs, err := queue.NewReindexQueue(queue.Config{
		Addr:       cfg.RedisAddr,
		Password:   cfg.RedisPassword,
		Stream:     cfg.QueueStream,
		Group:      cfg.QueueGroup,
		JobTTL:     cfg.JobTTL(),
		MaxRetries: cfg.QueueMaxRetries,
		RetryDelay: cfg.RetryDelay(),
		Logger:     logger,
	})
	if err != nil {
		util.Fatal("failed to init reindex queue", "err", err)
	}
	defer jobs.Close()

	appCore, err := app.New(app.Config{
		Indexer:     indexer,
		Queue:       jobs,
		Concurrency: cfg.QueueConcurrency,
		Logger:      logger,
	})
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	if err := appCore.Start(ctx); err != nil {
		util.Fatal("failed to start consumers", "err", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.New(server.Config{App: appCore}).Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if err := util.ListenAndServe(srv, 15*time.Second, stop, appCore.Wait); err != nil {
		logger.Error("server error", "err", err)
	}
}
