package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/checkfox/leadroute/internal/caps"
	"github.com/checkfox/leadroute/internal/client"
	"github.com/checkfox/leadroute/internal/config"
	"github.com/checkfox/leadroute/internal/database"
	"github.com/checkfox/leadroute/internal/dedup"
	"github.com/checkfox/leadroute/internal/delivery"
	"github.com/checkfox/leadroute/internal/logger"
	"github.com/checkfox/leadroute/internal/queue"
	"github.com/checkfox/leadroute/internal/repository"
	"github.com/checkfox/leadroute/internal/routing"
	"github.com/checkfox/leadroute/internal/worker"
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

	logger.Info(ctx, "Worker starting",
		"poll_interval", cfg.Worker.PollInterval,
		"retry_delay", cfg.Worker.RetryDelay)

	// Initialize database connection
	dbWrapper, err := database.InitFromConfig(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbWrapper.Close()

	logger.Info(ctx, "Database connection established")

	// The API process owns migrations; log what the worker sees applied
	if err := database.MigrationStatus(dbWrapper, "./migrations"); err != nil {
		logger.Warn(ctx, "Could not read migration status", "error", err.Error())
	}

	// Initialize Redis client for duplicate index and cap counters
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

	// Initialize pipeline components
	detector := dedup.NewRedisDetector(redisClient)
	capTracker := caps.NewRedisTracker(redisClient)
	dispatcher := delivery.NewHTTPDispatcher()
	validator := client.NewValidationClient(cfg.Validation.Timeout)
	router := routing.NewRouter(capTracker, dispatcher, leadRepo, leadRepo)

	// Create worker processor
	processor := worker.NewProcessor(worker.ProcessorConfig{
		Queue:         jobQueue,
		LeadRepo:      leadRepo,
		Snapshots:     snapshotRepo,
		UnknownFields: unknownFieldRepo,
		Detector:      detector,
		Router:        router,
		Validator:     validator,
		Dispatcher:    dispatcher,
		PollInterval:  cfg.Worker.PollInterval,
		RetryDelay:    cfg.Worker.RetryDelay,
		Concurrency:   cfg.Worker.Concurrency,
	})

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Create context for worker
	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start worker in a goroutine
	workerErrors := make(chan error, 1)
	go func() {
		workerErrors <- processor.Start(workerCtx)
	}()

	logger.Info(ctx, "Worker started successfully")

	// Wait for shutdown signal or worker error
	select {
	case err := <-workerErrors:
		if err != nil && err != context.Canceled {
			logger.Error(ctx, "Worker error", "error", err.Error())
		}

	case sig := <-sigChan:
		logger.Info(ctx, "Received shutdown signal", "signal", sig.String())

		// Cancel worker context to trigger graceful shutdown
		cancel()

		// Wait for worker to finish with timeout
		shutdownTimeout := time.NewTimer(30 * time.Second)
		defer shutdownTimeout.Stop()

		select {
		case <-workerErrors:
			logger.Info(ctx, "Worker stopped gracefully")
		case <-shutdownTimeout.C:
			logger.Warn(ctx, "Worker shutdown timeout exceeded, forcing exit")
		}
	}

	logger.Info(ctx, "Worker shutdown complete")
}
