package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/healthpredictor/healthpredictor-backend/internal/db"
	"github.com/healthpredictor/healthpredictor-backend/internal/handlers"
	"github.com/healthpredictor/healthpredictor-backend/internal/middleware"
	"github.com/healthpredictor/healthpredictor-backend/internal/observability"
	"github.com/healthpredictor/healthpredictor-backend/internal/platform/envutil"
	"github.com/healthpredictor/healthpredictor-backend/internal/platform/logger"
	"github.com/healthpredictor/healthpredictor-backend/internal/platform/openai"
	"github.com/healthpredictor/healthpredictor-backend/internal/repos"
	"github.com/healthpredictor/healthpredictor-backend/internal/server"
	"github.com/healthpredictor/healthpredictor-backend/internal/services"
)

func main() {
	// Logger
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Tracing
	shutdownOTel := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "healthpredictor-backend",
		Environment: envutil.String("ENVIRONMENT", "development"),
		Version:     envutil.String("SERVICE_VERSION", "dev"),
	})
	if shutdownOTel != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownOTel(ctx)
		}()
	}

	// Database
	dbService, err := db.New(log)
	if err != nil {
		log.Error("Database init failed", "error", err)
		os.Exit(1)
	}
	if err := dbService.AutoMigrateAll(); err != nil {
		log.Error("Auto migration failed", "error", err)
		os.Exit(1)
	}
	gdb := dbService.DB()

	// Repos
	log.Info("Setting up repos...")
	chatMessageRepo := repos.NewChatMessageRepo(gdb, log)
	studyRepo := repos.NewStudyRepo(gdb, log)

	// Services
	log.Info("Setting up services...")
	openaiClient, err := openai.NewClient(log)
	if err != nil {
		log.Error("Could not init OpenAI client", "error", err)
		os.Exit(1)
	}
	selectorClient := openai.WithModel(openaiClient, envutil.String("OPENAI_SELECTOR_MODEL", ""))

	bucketService, err := services.NewBucketService(log)
	if err != nil {
		// File upload and analysis answer 503 until storage is configured;
		// plain chat still works.
		log.Warn("Could not init BucketService", "error", err)
	}

	authService, err := services.NewAuthService(log, nil)
	if err != nil {
		log.Error("Could not init AuthService", "error", err)
		os.Exit(1)
	}

	conversationService := services.NewConversationService(log, chatMessageRepo)
	studyService := services.NewStudyService(log, studyRepo)
	selectorService := services.NewSelectorService(log, selectorClient)
	chatService := services.NewChatService(log, openaiClient, conversationService, bucketService)

	// Handlers + router
	log.Info("Setting up router...")
	router := server.NewRouter(server.RouterConfig{
		AuthMiddleware: middleware.NewAuthMiddleware(log, authService),
		ChatHandler:    handlers.NewChatHandler(log, chatService, selectorService, conversationService),
		FileHandler:    handlers.NewFileHandler(log, bucketService),
		StudyHandler:   handlers.NewStudyHandler(log, chatService, studyService),
	})

	port := envutil.String("PORT", "8080")
	log.Info("Server listening", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
