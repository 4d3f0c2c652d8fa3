package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"

	"github.com/checkfox/leadroute/internal/config"
	"github.com/checkfox/leadroute/internal/database"
	"github.com/checkfox/leadroute/internal/handlers"
	"github.com/checkfox/leadroute/internal/logger"
	"github.com/checkfox/leadroute/internal/queue"
	"github.com/checkfox/leadroute/internal/repository"
)

func main() {
	// Initialize structured logger
	logger.Init()
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Info(ctx, "API Server starting",
		"host", cfg.API.Host,
		"port", cfg.API.Port,
		"auth_enabled", cfg.Auth.Enabled)

	// Initialize database connection
	dbWrapper, err := database.InitFromConfig(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbWrapper.Close()

	logger.Info(ctx, "Database connection established")

	// Run database migrations
	if err := database.RunMigrations(dbWrapper, "./migrations"); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	logger.Info(ctx, "Database migrations completed")

	// Initialize Redis client for rate limiting
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	logger.Info(ctx, "Redis connection established", "addr", cfg.Redis.Addr)

	// Initialize queue client
	jobQueue, err := queue.NewDBQueue(dbWrapper.DB)
	if err != nil {
		log.Fatalf("Failed to initialize queue: %v", err)
	}
	defer jobQueue.Close()

	logger.Info(ctx, "Queue initialized")

	// Initialize repositories
	leadRepo := repository.NewLeadRepository(dbWrapper.DB)
	snapshotRepo := repository.NewSnapshotRepository(dbWrapper.DB)
	unknownFieldRepo := repository.NewUnknownFieldRepository(dbWrapper.DB)
	configRepo := repository.NewConfigRepository(dbWrapper.DB)

	// Initialize handlers
	limiter := handlers.NewRedisRateLimiter(redisClient)
	ingestHandler := handlers.NewIngestHandler(snapshotRepo, leadRepo, jobQueue, limiter)
	statsHandler := handlers.NewStatsHandler(leadRepo, unknownFieldRepo, jobQueue)
	adminHandler := handlers.NewAdminHandler(configRepo)

	// Initialize middleware
	authMiddleware := handlers.NewAuthMiddleware(cfg)
	recoveryMiddleware := handlers.NewRecoveryMiddleware()

	// Set up HTTP routes
	router := mux.NewRouter()

	// Ingest endpoint authenticates per source via API key
	router.HandleFunc("/v1/ingest/{api_key}",
		recoveryMiddleware.Recover(ingestHandler.HandleIngest)).
		Methods(http.MethodPost)

	// Stats endpoints behind the shared secret when auth is enabled
	router.HandleFunc("/v1/stats",
		recoveryMiddleware.Recover(
			authMiddleware.Authenticate(statsHandler.HandleStats))).
		Methods(http.MethodGet)
	router.HandleFunc("/v1/leads/recent",
		recoveryMiddleware.Recover(
			authMiddleware.Authenticate(statsHandler.HandleRecentLeads))).
		Methods(http.MethodGet)
	router.HandleFunc("/v1/leads/{lead_ref}",
		recoveryMiddleware.Recover(
			authMiddleware.Authenticate(statsHandler.HandleLeadHistory))).
		Methods(http.MethodGet)
	router.HandleFunc("/v1/sources/{source_id}/unknown-fields",
		recoveryMiddleware.Recover(
			authMiddleware.Authenticate(statsHandler.HandleUnknownFields))).
		Methods(http.MethodGet)

	// Config save paths validate rule trees and mappings before persisting
	router.HandleFunc("/v1/admin/sources/{source_id}/config",
		recoveryMiddleware.Recover(
			authMiddleware.Authenticate(adminHandler.HandleUpdateSourceConfig))).
		Methods(http.MethodPut)
	router.HandleFunc("/v1/admin/campaigns/{campaign_id}/config",
		recoveryMiddleware.Recover(
			authMiddleware.Authenticate(adminHandler.HandleUpdateCampaignConfig))).
		Methods(http.MethodPut)

	// Health check endpoint
	router.HandleFunc("/health", statsHandler.HandleHealth).Methods(http.MethodGet)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%s", cfg.API.Host, cfg.API.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info(ctx, "HTTP server listening", "address", addr)
		serverErrors <- server.ListenAndServe()
	}()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrors:
		log.Fatalf("Server error: %v", err)

	case sig := <-sigChan:
		logger.Info(ctx, "Received shutdown signal", "signal", sig.String())

		// Create shutdown context with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Attempt graceful shutdown
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error(ctx, "Server shutdown error", "error", err.Error())
			// Force close if graceful shutdown fails
			server.Close()
		}

		logger.Info(ctx, "Server shutdown complete")
	}
}
