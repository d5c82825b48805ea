package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/gramnet/pulse/internal/cache"
	"github.com/gramnet/pulse/internal/db"
	"github.com/gramnet/pulse/internal/stories"
	"github.com/gramnet/pulse/pkg/config"
	"github.com/gramnet/pulse/pkg/logging"
	"github.com/gramnet/pulse/pkg/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logging.InitLogger(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.GetLogger().Sync()

	logger := logging.GetLogger()
	logger.Info("Starting Pulse Janitor")

	// Initialize telemetry
	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer telemetryShutdown()

	// Initialize database
	database, err := db.New(&cfg.Database, cfg.Logging.Level)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	// Initialize Redis cache
	redisCache, err := cache.New(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisCache.Close()

	svc := stories.NewService(db.NewRepository(database.DB), redisCache)

	purge := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		removed, err := svc.PurgeExpired(ctx)
		if err != nil {
			logger.Error("Purge run failed", zap.Error(err))
			return
		}
		logger.Info("Purge run complete", zap.Int64("removed", removed))
	}

	purge()
	if cfg.Janitor.RunOnce {
		logger.Info("Janitor exited")
		return
	}

	ticker := time.NewTicker(cfg.Janitor.Interval)
	defer ticker.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Janitor running", zap.Duration("interval", cfg.Janitor.Interval))
	for {
		select {
		case <-ticker.C:
			purge()
		case <-quit:
			logger.Info("Janitor exited")
			return
		}
	}
}
