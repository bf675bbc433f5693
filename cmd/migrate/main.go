package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/lukudiplomi/reading-board/internal/config"
	"github.com/lukudiplomi/reading-board/internal/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		logger.Info(".env file not found, using existing environment variables")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Get command from arguments (default to "up")
	command := "up"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, &cfg.Postgres)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger.Info("running migrations", "command", command, "database", cfg.Postgres.Database)
	if err := postgres.Migrate(ctx, pool, command); err != nil {
		logger.Error("migration failed", "command", command, "error", err)
		pool.Close()
		os.Exit(1)
	}
	logger.Info("migration command completed", "command", command)
}
