package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/tablemind/rulebook-backend/internal/data/db"
	"github.com/tablemind/rulebook-backend/internal/data/repos/rulebooks"
	"github.com/tablemind/rulebook-backend/internal/handlers"
	"github.com/tablemind/rulebook-backend/internal/platform/envutil"
	"github.com/tablemind/rulebook-backend/internal/platform/logger"
	"github.com/tablemind/rulebook-backend/internal/platform/observability"
	"github.com/tablemind/rulebook-backend/internal/platform/openai"
	"github.com/tablemind/rulebook-backend/internal/platform/websearch"
	"github.com/tablemind/rulebook-backend/internal/rag/embedder"
	"github.com/tablemind/rulebook-backend/internal/rag/reranker"
	"github.com/tablemind/rulebook-backend/internal/rag/retriever"
	"github.com/tablemind/rulebook-backend/internal/rag/rewriter"
	"github.com/tablemind/rulebook-backend/internal/server"
	"github.com/tablemind/rulebook-backend/internal/services"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Tracing (no-op unless OTEL_ENABLED is set)
	if stopTracing := observability.Init(context.Background(), log); stopTracing != nil {
		defer func() {
			if err := stopTracing(context.Background()); err != nil {
				log.Warn("Tracing shutdown failed", "error", err.Error())
			}
		}()
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err.Error())
	}
	thePG := postgresService.DB()
	if err := db.AutoMigrateAll(thePG); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err.Error())
	}
	if err := db.EnsureSearchIndexes(thePG); err != nil {
		log.Fatal("Postgres index setup failed", "error", err.Error())
	}

	// Repos
	documentRepo := rulebooks.NewDocumentRepo(thePG, log)
	chunkRepo := rulebooks.NewChunkRepo(thePG, log)

	// External clients
	openaiClient, err := openai.NewClient(log)
	if err != nil {
		log.Fatal("OpenAI client init failed", "error", err.Error())
	}
	searchClient, err := websearch.NewClient(log)
	if err != nil {
		log.Fatal("Web search client init failed", "error", err.Error())
	}

	// Retrieval pipeline
	emb := embedder.New(openaiClient, log)
	rt := retriever.New(emb, chunkRepo, log)
	var scorer reranker.Scorer
	if s := reranker.NewHTTPScorerFromEnv(log); s != nil {
		scorer = s
	} else {
		log.Info("RERANK_URL not set, reranker runs in passthrough mode")
	}
	rr := reranker.New(scorer, log)
	rw := rewriter.New(openaiClient, log)

	// Services
	historyStore := services.NewHistoryStoreFromEnv(log)
	chatService := services.NewChatService(openaiClient, rw, rt, rr, historyStore, log)
	ingestionService := services.NewIngestionService(
		thePG, documentRepo, chunkRepo, searchClient, openaiClient, emb, log,
	)

	// HTTP
	router := server.NewRouter(server.RouterConfig{
		ChatHandler:     handlers.NewChatHandler(log, chatService),
		IngestHandler:   handlers.NewIngestHandler(log, ingestionService),
		DocumentHandler: handlers.NewDocumentHandler(log, documentRepo, chunkRepo),
	})

	port := envutil.String("PORT", "8080")
	log.Info("Starting server", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Server exited", "error", err.Error())
	}
}
