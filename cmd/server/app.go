package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/solvenet/recaptcha-api/internal/config"
	"github.com/solvenet/recaptcha-api/internal/dispatcher"
	"github.com/solvenet/recaptcha-api/internal/platform/engine"
	"github.com/solvenet/recaptcha-api/internal/proxy"
	"github.com/solvenet/recaptcha-api/internal/service"
	"github.com/solvenet/recaptcha-api/internal/solver"
	"github.com/solvenet/recaptcha-api/internal/stats"
	"github.com/solvenet/recaptcha-api/internal/store"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	// db is set only for the postgres storage driver; its lifecycle
	// belongs to the application, not the store.
	db *sql.DB

	taskStore  store.TaskStore
	selector   *proxy.Selector
	solver     solver.Solver
	dispatcher *dispatcher.Dispatcher

	taskService *service.TaskService
	aggregator  *stats.Aggregator
	sweeper     *service.RetentionSweeper
}

// newApplication creates a new application instance with all
// dependencies initialized and background loops started.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
	}

	var err error
	app.taskStore, app.db, err = setupTaskStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize task store: %w", err)
	}
	logger.Info("task store initialized", "driver", cfg.Storage.Driver)

	app.selector = proxy.NewSelector(cfg.Proxy, nil, logger.With("component", "proxy_selector"))
	logger.Info("proxy pool assembled", "size", app.selector.Size())

	app.solver = setupSolver(cfg, logger)

	app.dispatcher = dispatcher.New(app.taskStore, dispatcher.Config{
		MaxConcurrent: cfg.Dispatcher.MaxConcurrent,
		SolveTimeout:  time.Duration(cfg.Dispatcher.SolveTimeoutSeconds) * time.Second,
	}, logger.With("component", "dispatcher"))

	app.taskService, err = service.NewTaskService(
		app.taskStore,
		app.dispatcher,
		app.selector,
		app.solver,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create task service: %w", err)
	}

	app.aggregator = stats.NewAggregator(app.taskStore)

	app.sweeper = service.NewRetentionSweeper(
		app.taskStore,
		time.Duration(cfg.Retention.MaxAgeHours)*time.Hour,
		time.Duration(cfg.Retention.SweepIntervalMinutes)*time.Minute,
		logger.With("component", "retention"),
	)
	app.sweeper.Start()

	logger.Info("application initialized successfully")
	return app, nil
}

// setupSolver wires the external solving engine, or the unconfigured
// stand-in when no engine URL is set.
func setupSolver(cfg *config.Config, logger *slog.Logger) solver.Solver {
	if cfg.Engine.URL == "" {
		logger.Warn("no solving engine configured, every task will fail with a descriptive error")
		return engine.Unconfigured()
	}

	client, err := engine.NewClient(cfg.Engine, logger.With("component", "engine"))
	if err != nil {
		logger.Warn("failed to initialize engine client, falling back to unconfigured solver",
			"error", err)
		return engine.Unconfigured()
	}

	logger.Info("solving engine client initialized", "url", cfg.Engine.URL)
	return client
}

// Run starts the application server, handling lifecycle and cleanup.
// It returns an error if the server fails to start or encounters
// problems.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// cleanup handles graceful shutdown of application resources: the
// retention sweeper stops, in-flight solves drain, then storage closes.
func (app *application) cleanup() {
	if app.sweeper != nil {
		app.sweeper.Stop()
	}

	if app.dispatcher != nil {
		app.logger.Info("waiting for in-flight solves to finish")
		app.dispatcher.Wait()
	}

	if app.taskStore != nil {
		if err := app.taskStore.Close(); err != nil {
			app.logger.Error("error closing task store", "error", err)
		}
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}
}
