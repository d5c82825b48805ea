package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gramnet/pulse/internal/api"
	"github.com/gramnet/pulse/internal/cache"
	"github.com/gramnet/pulse/internal/db"
	"github.com/gramnet/pulse/internal/feed"
	"github.com/gramnet/pulse/internal/notify"
	"github.com/gramnet/pulse/internal/realtime"
	"github.com/gramnet/pulse/internal/stories"
	"github.com/gramnet/pulse/internal/trending"
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
	logger.Info("Starting Pulse Server")

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

	repo := db.NewRepository(database.DB)
	users := db.NewUserRepository(repo)

	// Presence transitions maintain the online flag and the user's
	// last-active stamp.
	onTransition := func(userID string, online bool) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		key := cache.OnlineKey(userID)
		if online {
			if err := redisCache.Set(ctx, key, "1", cfg.CacheTTL.OnlineFlag); err != nil && err != cache.ErrCacheDisabled {
				logger.Warn("failed to set online flag", zap.String("user_id", userID), zap.Error(err))
			}
		} else {
			if err := redisCache.Delete(ctx, key); err != nil && err != cache.ErrCacheDisabled {
				logger.Warn("failed to clear online flag", zap.String("user_id", userID), zap.Error(err))
			}
			if err := users.TouchLastActive(ctx, userID, time.Now().UTC()); err != nil {
				logger.Warn("failed to stamp last active", zap.String("user_id", userID), zap.Error(err))
			}
		}
	}

	// Realtime core
	registry := realtime.NewRegistry(cfg.Realtime.OfflineGrace, onTransition)
	rtRouter := realtime.NewRouter(registry)
	dispatcher := realtime.NewDispatcher()
	realtime.RegisterInteractionHandlers(dispatcher, rtRouter, db.NewDirectory(repo))

	// Feature services
	feeds := feed.NewService(repo, feed.NewCoordinator(redisCache), cfg.CacheTTL.Feed, cfg.CacheTTL.Explore)
	notifs := notify.NewService(repo, redisCache, rtRouter, cfg.CacheTTL.UnreadCount)
	trends := trending.NewService(repo, redisCache, cfg.CacheTTL.Trending)
	storySvc := stories.NewService(repo, redisCache)

	// Create Gin router
	if cfg.Logging.Level == "DEBUG" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	apiRouter := api.NewRouter(rtRouter, dispatcher, feeds, notifs, trends, storySvc, &cfg.Realtime)
	apiRouter.SetupRoutes(router)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server starting", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
