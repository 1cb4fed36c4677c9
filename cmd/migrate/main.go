package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/kmccarthy/riskgate/internal/config"
)

// Applies goose migrations from ./migrations. Usage:
//
//	migrate [up|down|status]
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	connConfig, err := pgx.ParseConfig(connString)
	if err != nil {
		logger.Error("invalid database configuration", slog.Any("error", err))
		os.Exit(1)
	}

	// Goose needs a database/sql handle; use the pgx stdlib adapter.
	db := stdlib.OpenDB(*connConfig)
	defer db.Close()

	ctx := context.Background()

	var gooseErr error
	switch command {
	case "up":
		gooseErr = goose.UpContext(ctx, db, "migrations")
	case "down":
		gooseErr = goose.DownContext(ctx, db, "migrations")
	case "status":
		gooseErr = goose.StatusContext(ctx, db, "migrations")
	default:
		logger.Error("unknown command", slog.String("command", command))
		os.Exit(1)
	}

	if gooseErr != nil {
		logger.Error("migration failed", slog.String("command", command), slog.Any("error", gooseErr))
		os.Exit(1)
	}

	logger.Info("migration complete", slog.String("command", command))
}
