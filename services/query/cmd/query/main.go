package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"docvault/internal/ratelimit"
	"docvault/internal/util"
	"docvault/pkg/ai"
	"docvault/pkg/rag"
	"docvault/pkg/store"
	"docvault/services/query/internal/app"
	"docvault/services/query/internal/config"
	"docvault/services/query/internal/history"
	"docvault/services/query/internal/server"
)

func main() {
	cfg, err := config.Load(config.PathFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, cleanup := util.InitLogger(cfg.LogLevel, "query", cfg.LogsDir)
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
	llm, err := ai.NewGenerator(ai.ProviderConfig{
		Provider:    cfg.GenerationProvider,
		BaseURL:     cfg.GenerationBaseURL,
		APIKey:      cfg.GenerationAPIKey,
		Model:       cfg.GenerationModel,
		Timeout:     cfg.UpstreamTimeout(),
		Retry:       retry,
		Temperature: cfg.GenerationTemperature,
	})
	if err != nil {
		util.Fatal("failed to init generator", "err", err)
	}

	retriever, err := rag.NewHybridRetriever(embedder, docs, rag.RetrieverOptions{
		SimilarityK:  cfg.SimilarityK,
		KeywordK:     cfg.KeywordK,
		CallTimeout:  cfg.UpstreamTimeout(),
		AllowPartial: cfg.AllowPartialRetrieval,
		Logger:       logger,
	})
	if err != nil {
		util.Fatal("failed to init retriever", "err", err)
	}
	generator, err := rag.NewAnswerGenerator(llm, cfg.UpstreamTimeout())
	if err != nil {
		util.Fatal("failed to init answer generator", "err", err)
	}

	appCfg := app.Config{
		Retriever:    retriever,
		Generator:    generator,
		SimilarityK:  cfg.SimilarityK,
		KeywordK:     cfg.KeywordK,
		HistoryLimit: cfg.HistoryLimit,
	}
	serverCfg := server.Config{DB: docs}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		sessions, err := history.NewRedisStore(rdb, cfg.HistoryTTL(), cfg.HistoryLimit)
		if err != nil {
			util.Fatal("failed to init session history", "err", err)
		}
		appCfg.History = sessions
		if cfg.RateLimitPerMinute > 0 {
			limiter, err := ratelimit.NewFixedWindow(rdb, "docvault:ratelimit:query", cfg.RateLimitPerMinute, time.Minute)
			if err != nil {
				util.Fatal("failed to init rate limiter", "err", err)
			}
			serverCfg.Limiter = limiter
		}
	}
	proxies, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		util.Fatal("invalid trustedProxies", "err", err)
	}
	serverCfg.TrustedProxies = proxies

	appCore, err := app.New(appCfg)
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}
	serverCfg.App = appCore
	httpServer := server.New(serverCfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      3*cfg.UpstreamTimeout() + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if err := util.ListenAndServe(srv, 15*time.Second); err != nil {
		logger.Error("server error", "err", err)
	}
}
