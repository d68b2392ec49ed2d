package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/healthpredictor/healthpredictor-backend/internal/handlers"
	"github.com/healthpredictor/healthpredictor-backend/internal/middleware"
	"github.com/healthpredictor/healthpredictor-backend/internal/platform/envutil"
)

type RouterConfig struct {
	AuthMiddleware *middleware.AuthMiddleware
	ChatHandler    *handlers.ChatHandler
	FileHandler    *handlers.FileHandler
	StudyHandler   *handlers.StudyHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(otelgin.Middleware("healthpredictor-backend"))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins(),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		ExposeHeaders:    []string{"X-Conversation-ID", "X-Study-ID"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)

	// ===============
	// || Protected ||
	// ===============
	protected := router.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAuth())

	// Files
	protected.POST("/files/upload-health-data", cfg.FileHandler.UploadHealthData)

	// Chat
	protected.POST("/chat/simple-chat", cfg.ChatHandler.SimpleChat)
	protected.POST("/chat/analyze-health-data", cfg.ChatHandler.AnalyzeHealthData)
	protected.POST("/chat/should-use-code-interpreter", cfg.ChatHandler.ShouldUseCodeInterpreter)
	protected.GET("/chat/history/:conversation_id", cfg.ChatHandler.History)
	protected.DELETE("/chat/history/:conversation_id", cfg.ChatHandler.ClearHistory)
	protected.GET("/chat/sessions", cfg.ChatHandler.Sessions)

	// Studies
	protected.GET("/studies", cfg.StudyHandler.List)
	protected.POST("/studies", cfg.StudyHandler.Create)
	protected.POST("/studies/generate-outcome", cfg.StudyHandler.GenerateOutcome)
	protected.POST("/studies/summarize-study", cfg.StudyHandler.SummarizeStudy)

	return router
}

func corsOrigins() []string {
	raw := envutil.String("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173")
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}
