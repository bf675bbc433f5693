package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lukudiplomi/reading-board/internal/config"
	"github.com/lukudiplomi/reading-board/internal/gamelogic"
	"github.com/lukudiplomi/reading-board/internal/handler"
	"github.com/lukudiplomi/reading-board/internal/kafka"
	"github.com/lukudiplomi/reading-board/internal/memory"
	"github.com/lukudiplomi/reading-board/internal/postgres"
	"github.com/lukudiplomi/reading-board/internal/redis"
	"github.com/lukudiplomi/reading-board/internal/service"
	"github.com/lukudiplomi/reading-board/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// A missing .env is fine; the environment may already be populated
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load(*configPath)
	loadErr := err
	if err != nil {
		cfg = config.DefaultConfig()
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)
	if loadErr != nil {
		logger.Warn("failed to load config file, using defaults", "error", loadErr)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open storage", "driver", cfg.Storage.Driver, "error", err)
		os.Exit(1)
	}
	defer closeRepo()

	cache, closeCache, err := openCache(cfg, logger)
	if err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer closeCache()

	// Initialize game engine and services
	engine := gamelogic.NewEngine(repo, logger)
	limits := gamelogic.Limits{
		MaxPagesRatio:   cfg.Game.MaxPagesRatio,
		MinReviewLength: cfg.Game.MinReviewLength,
	}

	catalogService := service.NewCatalogService(repo, cache, cfg.Game.AchievementsTTL, logger)
	readingService := service.NewReadingService(repo, engine, cache, limits, cfg.Game.PendingLogsLimit, logger)
	boardService := service.NewBoardService(engine, cache, cfg.Game.BoardCacheTTL, logger)
	leaderboardService := service.NewLeaderboardService(repo, cache, &cfg.Leaderboard, cfg.Game.LeaderboardTTL, logger)

	// Keep cached leaderboards warm
	warmer := worker.NewLeaderboardWarmer(leaderboardService, &cfg.Warmer, logger)
	if cfg.Warmer.Enabled {
		warmer.RunOnce(ctx)
		if err := warmer.Start(ctx); err != nil {
			logger.Error("failed to start leaderboard warmer", "error", err)
			os.Exit(1)
		}
	}

	// Initialize Kafka consumer for book completions
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, readingService, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
			kafkaConsumer = nil
		} else if err := kafkaConsumer.Start(); err != nil {
			logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
			kafkaConsumer = nil
		} else {
			logger.Info("Kafka consumer started successfully")
		}
	}

	httpHandler := handler.NewHandler(catalogService, readingService, boardService, leaderboardService, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop accepting requests before draining Kafka
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	if err := warmer.Stop(); err != nil {
		logger.Error("failed to stop leaderboard warmer", "error", err)
	}

	logger.Info("server stopped")
}

// openRepository connects the configured storage backend
func openRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (service.Repository, func(), error) {
	switch cfg.Storage.Driver {
	case "memory":
		logger.Warn("using in-memory storage, data is lost on restart")
		return memory.NewStore(), func() {}, nil

	default:
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		repo, err := postgres.NewRepository(&cfg.Postgres, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("connected to PostgreSQL")

		if cfg.Storage.AutoMigrate {
			if err := repo.RunMigrations(ctx); err != nil {
				repo.Close()
				return nil, nil, err
			}
		}
		return repo, repo.Close, nil
	}
}

// openCache connects to Redis, or returns a no-op cache when it is disabled
func openCache(cfg *config.Config, logger *slog.Logger) (service.Cache, func(), error) {
	if !cfg.Redis.Enabled {
		logger.Info("redis disabled, caching turned off")
		return service.NoopCache{}, func() {}, nil
	}

	logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	cache, err := redis.NewCache(&cfg.Redis, logger)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("connected to Redis")

	return cache, func() {
		if err := cache.Close(); err != nil {
			logger.Warn("failed to close Redis client", "error", err)
		}
	}, nil
}
