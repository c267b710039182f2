package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/solvenet/recaptcha-api/internal/config"
	"github.com/solvenet/recaptcha-api/internal/platform/memory"
	"github.com/solvenet/recaptcha-api/internal/platform/postgres"
	redisstore "github.com/solvenet/recaptcha-api/internal/platform/redis"
	"github.com/solvenet/recaptcha-api/internal/store"
)

// setupTaskStore constructs the task store selected by configuration.
// The returned *sql.DB is non-nil only for the postgres driver; the
// application owns its lifecycle.
func setupTaskStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.TaskStore, *sql.DB, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		db, err := openPostgres(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewTaskStore(db), db, nil

	case "redis":
		taskStore, err := redisstore.NewTaskStore(ctx, cfg.Storage.Redis)
		if err != nil {
			return nil, nil, err
		}
		return taskStore, nil, nil

	case "memory":
		logger.Warn("using in-memory task store, history is lost on restart")
		return memory.NewTaskStore(), nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// openPostgres establishes the database connection and configures the
// connection pool.
func openPostgres(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.Storage.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established")
	return db, nil
}
