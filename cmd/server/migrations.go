package main

import (
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"

	"github.com/solvenet/recaptcha-api/internal/config"
)

// migrationsDir is the path to the goose SQL migrations, relative to the
// working directory the server is launched from.
const migrationsDir = "migrations"

// runMigrations executes the requested goose command against the
// configured postgres database and exits. Only the postgres driver uses
// migrations; the redis and memory stores are schemaless.
func runMigrations(cfg *config.Config, command string, logger *slog.Logger) error {
	if cfg.Storage.Driver != "postgres" {
		return fmt.Errorf("migrations require the postgres storage driver, got %q", cfg.Storage.Driver)
	}

	db, err := goose.OpenDBWithDriver("pgx", cfg.Storage.URL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close migration database connection", "error", err)
		}
	}()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	logger.Info("running migrations", "command", command, "dir", migrationsDir)

	switch command {
	case "up":
		err = goose.Up(db, migrationsDir)
	case "down":
		err = goose.Down(db, migrationsDir)
	case "status":
		err = goose.Status(db, migrationsDir)
	default:
		return fmt.Errorf("unknown migration command %q (want up, down, or status)", command)
	}

	if err != nil {
		return fmt.Errorf("goose %s failed: %w", command, err)
	}

	logger.Info("migrations completed", "command", command)
	return nil
}
