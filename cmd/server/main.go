package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/mrhollen/KnowledgeChat/internal/auth"
	"github.com/mrhollen/KnowledgeChat/internal/config"
	"github.com/mrhollen/KnowledgeChat/internal/db"
	"github.com/mrhollen/KnowledgeChat/internal/handlers"
	"github.com/mrhollen/KnowledgeChat/internal/index"
	"github.com/mrhollen/KnowledgeChat/internal/llm"
	"github.com/mrhollen/KnowledgeChat/internal/server"
	"github.com/mrhollen/KnowledgeChat/pkg/utils"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	envPath := flag.String("env", ".env", "path to a .env file")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	database, chunkStore, err := openDatabase(cfg.Storage)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}
	defer database.Close()

	prompt, err := llm.LoadSystemPrompt(cfg.LLM.SystemPromptPath)
	if err != nil {
		logger.Fatal("failed to read system prompt", zap.String("path", cfg.LLM.SystemPromptPath), zap.Error(err))
	}
	llmClient := llm.NewOpenAIClient(
		cfg.LLM.Endpoint,
		cfg.LLM.EmbeddingEndpoint,
		llm.StaticCredential(cfg.LLM.APIKey),
		cfg.LLM.DefaultModel,
		llm.WithHTTPClient(&http.Client{Timeout: cfg.LLM.Timeout}),
		llm.WithLogger(logger.Named("llm")),
		llm.WithSystemPrompt(prompt),
	)

	searchIndex, err := openIndex(cfg, chunkStore, llmClient)
	if err != nil {
		logger.Fatal("failed to open index", zap.String("path", cfg.Index.Path), zap.Error(err))
	}
	defer searchIndex.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := handlers.NewMetrics(registry)

	docHandler := &handlers.DocumentHandler{
		DB:             database,
		Index:          searchIndex,
		Chunker:        index.NewChunker(cfg.Index.ChunkSize, cfg.Index.ChunkOverlap),
		DefaultDataset: cfg.Index.DefaultName,
		Logger:         logger.Named("documents"),
	}
	srv := &server.Server{
		Chat: &handlers.ChatHandler{
			DB:             database,
			LLM:            llmClient,
			Index:          searchIndex,
			Limit:          cfg.Index.Limit,
			DefaultOptions: cfg.Client.DefaultOptions,
			ModelAliases:   cfg.LLM.Models,
			Metrics:        metrics,
			Logger:         logger.Named("chat"),
		},
		Feedback: &handlers.FeedbackHandler{
			DB:      database,
			Metrics: metrics,
			Logger:  logger.Named("feedback"),
		},
		Documents: docHandler,
		Upload:    &handlers.UploadHandler{Documents: docHandler, Logger: logger.Named("upload")},
		Search: &handlers.SearchHandler{
			DB:     database,
			Index:  searchIndex,
			Limit:  cfg.Index.Limit,
			Logger: logger.Named("search"),
		},
		Registry: registry,
		Logger:   logger,
	}
	if cfg.Index.RewriteQuery {
		srv.Chat.Rewriter = llmClient
	}
	if len(cfg.Auth.AccessTokens) > 0 || cfg.Storage.Driver != config.DriverMemory {
		srv.Authorizer = auth.NewAccessTokenAuthorizer(database, cfg.Auth.AccessTokens, logger.Named("auth"))
	} else {
		logger.Warn("no access tokens configured, document routes are open")
	}

	go func() {
		if err := srv.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// openDatabase returns the configured store and, for postgres, the chunk
// store that backs vector search.
func openDatabase(cfg config.StorageConfig) (db.DB, index.ChunkStore, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pg, err := db.NewPostgresDB(cfg.ConnectionString)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg, nil
	case config.DriverSQLite:
		sqlite, err := db.NewSQLiteDB(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return sqlite, nil, nil
	default:
		return db.NewMemoryDB(), nil, nil
	}
}

// openIndex prefers vector search when postgres and an embedding endpoint
// are both configured, and falls back to a bleve keyword index.
func openIndex(cfg *config.Config, chunks index.ChunkStore, embedder llm.Embedder) (index.Index, error) {
	if chunks != nil && cfg.LLM.EmbeddingEndpoint != "" {
		return index.NewVectorIndex(chunks, embedder, cfg.LLM.EmbeddingModel), nil
	}
	if cfg.Index.Path == "" {
		return index.NewMemBleveIndex()
	}
	return index.NewBleveIndex(cfg.Index.Path)
}
