package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tablemind/rulebook-backend/internal/handlers"
	"github.com/tablemind/rulebook-backend/internal/platform/envutil"
	"github.com/tablemind/rulebook-backend/internal/platform/observability"
)

type RouterConfig struct {
	ChatHandler     *handlers.ChatHandler
	IngestHandler   *handlers.IngestHandler
	DocumentHandler *handlers.DocumentHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	if envutil.String("GIN_MODE", "") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Spans are no-ops until observability.Init installs a real provider.
	router.Use(otelgin.Middleware(observability.ServiceName))

	origins := strings.Split(envutil.String("CORS_ALLOW_ORIGINS", "http://localhost:3000,http://localhost:5174"), ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		api.POST("/chat", cfg.ChatHandler.Chat)
		api.POST("/ingest", cfg.IngestHandler.Ingest)
		api.POST("/ingest/batch", cfg.IngestHandler.IngestBatch)
		api.GET("/documents/:doc_id", cfg.DocumentHandler.GetDocument)
		api.DELETE("/documents/:doc_id", cfg.DocumentHandler.DeleteDocument)
	}

	return router
}
