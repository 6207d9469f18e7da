package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"alcyxob/coaching-platform/internal/api"
	"alcyxob/coaching-platform/internal/app"
	"alcyxob/coaching-platform/internal/config"
)

// @title Coaching Platform Plan Engine API
// @version 1.0
// @description Adaptive training-plan proposals: trigger detection, proposal lifecycle, approval and undo.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	log.Println("Starting plan engine server...")

	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("FATAL: Could not load config: %v", err)
	}
	if cfg.JWT.Secret == "" {
		log.Fatalf("FATAL: jwt.secret is not set")
	}
	logger := app.NewLogger(cfg.Log)
	logger.Info("configuration loaded", "driver", cfg.Database.Driver, "policy", cfg.Policy.Profile)

	// --- Store, policies, providers and services ---
	ctx := context.Background()
	engine, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("FATAL: Could not initialize engine: %v", err)
	}
	// Deferred before the server starts, so it runs after Shutdown returns.
	defer func() {
		logger.Info("closing store")
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := engine.Close(closeCtx); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}()

	// --- Initialize Gin Engine ---
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	// Recovery first so a panic inside a traced handler still closes its span.
	router.Use(gin.Recovery(), otelgin.Middleware("coaching-platform"))

	// --- Setup Routes ---
	logger.Info("setting up API routes")
	api.SetupRoutes(router, cfg.JWT.Secret, api.Services{
		Proposals:   engine.Proposals,
		Triggers:    engine.Triggers,
		Performance: engine.Performance,
		Policies:    engine.Policies,
		Gatherer:    engine.Registry,
		Logger:      logger,
	})

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.Info("server starting", "address", cfg.Server.Address)

	// --- Graceful Shutdown ---
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("FATAL: ListenAndServe Error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// The context is used to inform the server it has 5 seconds to finish
	// the requests it is currently handling
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server exiting")
}
