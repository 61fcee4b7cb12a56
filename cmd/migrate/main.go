package main

// Apply or inspect the documents/reminders schema:
//   go run ./cmd/migrate            # goose up
//   go run ./cmd/migrate -status    # print applied versions

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fleetdocs-backend/internal/shared/config"
	"fleetdocs-backend/internal/shared/storage/db"
	"fleetdocs-backend/internal/shared/telemetry"
)

func main() {
	status := flag.Bool("status", false, "print migration status instead of applying")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall deadline")
	flag.Parse()

	cfg := config.Load()
	telemetry.Configure(os.Stdout, cfg.LogFormat, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	if err := run(ctx, cfg.DatabaseURL, *status); err != nil {
		telemetry.Error("migrate.failed", map[string]any{"error": err.Error(), "status_only": *status})
		os.Exit(1)
	}
	telemetry.Info("migrate.complete", map[string]any{"status_only": *status})
}

func run(ctx context.Context, databaseURL string, statusOnly bool) error {
	if databaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	sqlDB, err := db.Connect(ctx, databaseURL, db.OptionsFromEnv(db.DefaultMigrateOptions()))
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if statusOnly {
		return db.MigrationStatus(ctx, sqlDB)
	}
	return db.RunMigrations(ctx, sqlDB)
}
