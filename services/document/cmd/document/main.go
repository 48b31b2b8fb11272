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
	"docvault/pkg/storage"
	"docvault/pkg/store"
	"docvault/services/document/internal/app"
	"docvault/services/document/internal/config"
	"docvault/services/document/internal/server"
)

func main() {
	cfg, err := config.Load(config.PathFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, cleanup := util.InitLogger(cfg.LogLevel, "document", cfg.LogsDir)
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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	objects, err := storage.NewMinioStore(ctx, storage.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	})
	cancel()
	if err != nil {
		util.Fatal("failed to init object storage", "err", err)
	}

	appCfg := app.Config{
		Store:         docs,
		Objects:       objects,
		IndexMode:     cfg.IndexMode,
		PresignExpiry: cfg.PresignExpiry(),
	}
	switch cfg.IndexMode {
	case app.IndexModeQueue:
		jobs, err := queue.NewReindexQueue(queue.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Stream:   cfg.QueueStream,
			Group:    cfg.QueueGroup,
			JobTTL:   cfg.JobTTL(),
			MaxLen:   int64(cfg.QueueMaxLength),
			Logger:   logger,
		})
		if err != nil {
			util.Fatal("failed to init reindex queue", "err", err)
		}
		appCfg.Queue = jobs
	default:
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
		appCfg.Indexer = indexer
	}

	appCore, err := app.New(appCfg)
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}
	httpServer := server.New(server.Config{App: appCore, MaxUploadBytes: int64(cfg.MaxUploadBytes), DB: docs})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	if err := util.ListenAndServe(srv, 15*time.Second); err != nil {
		logger.Error("server error", "err", err)
	}
}
