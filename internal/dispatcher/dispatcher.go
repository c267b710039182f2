// Package dispatcher turns admitted tasks into exactly one asynchronous
// solve execution each. Every completion path, including panics inside
// the solver, funnels through a single terminal-write routine so a task
// can never end up with more than one terminal status or be left in
// processing forever.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/solvenet/recaptcha-api/internal/domain"
	"github.com/solvenet/recaptcha-api/internal/solver"
	"github.com/solvenet/recaptcha-api/internal/store"
)

// Config holds the dispatcher's resource bounds.
type Config struct {
	// MaxConcurrent caps the number of solves executing at once. Each
	// execution holds a browser context on the engine side for its full
	// duration, so the cap is a resource bound, not a correctness one.
	MaxConcurrent int

	// SolveTimeout is the deadline applied to each solve call. Expiry
	// resolves the task to the error status.
	SolveTimeout time.Duration
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 4,
		SolveTimeout:  60 * time.Second,
	}
}

// Dispatcher schedules one background execution per admitted task.
type Dispatcher struct {
	store  store.TaskStore
	config Config
	logger *slog.Logger

	sem chan struct{}
	wg  sync.WaitGroup
}

// New creates a Dispatcher writing terminal results through the given
// store.
func New(taskStore store.TaskStore, config Config, logger *slog.Logger) *Dispatcher {
	if config.MaxConcurrent <= 0 {
		logger.Warn("invalid max concurrent solves, using default",
			"specified", config.MaxConcurrent,
			"default", DefaultConfig().MaxConcurrent)
		config.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	if config.SolveTimeout <= 0 {
		config.SolveTimeout = DefaultConfig().SolveTimeout
	}

	return &Dispatcher{
		store:  taskStore,
		config: config,
		logger: logger,
		sem:    make(chan struct{}, config.MaxConcurrent),
	}
}

// Schedule launches the asynchronous execution for an admitted task.
// It returns immediately and never fails the caller: the goroutine
// blocks on the concurrency semaphore, runs the solve with the
// configured timeout, and performs the terminal write. Exactly one
// terminal write happens per scheduled task regardless of how the solve
// fails.
func (d *Dispatcher) Schedule(task *domain.Task, s solver.Solver) {
	d.wg.Add(1)
	go d.execute(task, s)
}

// Wait blocks until every scheduled execution has completed. Used during
// graceful shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// execute runs one solve and resolves the task to a terminal status.
func (d *Dispatcher) execute(task *domain.Task, s solver.Solver) {
	defer d.wg.Done()

	d.sem <- struct{}{}
	defer func() { <-d.sem }()

	logger := d.logger.With("task_id", task.ID, "page_url", task.PageURL)

	var outcome solver.Outcome
	var solveErr error

	// The solve runs inside its own function so the deferred recover
	// covers it without covering the terminal write below.
	func() {
		defer func() {
			if r := recover(); r != nil {
				solveErr = fmt.Errorf("solver panic: %v", r)
				logger.Error("solver panicked", "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.config.SolveTimeout)
		defer cancel()

		started := time.Now()
		outcome, solveErr = s.Solve(ctx, task.SiteKey, task.PageURL, task.Proxy)
		if solveErr == nil && outcome.SolveTime == 0 {
			outcome.SolveTime = time.Since(started).Seconds()
		}

		if solveErr == nil && ctx.Err() != nil && !outcome.Success && outcome.Error == "" {
			outcome.Error = "solve timeout"
		}
	}()

	update := resolve(outcome, solveErr)

	if update.Status == domain.TaskStatusReady {
		logger.Info("task solved", "solve_time", update.SolveTime)
	} else {
		logger.Info("task failed", "error", update.Error)
	}

	d.writeTerminal(task, update, logger)
}

// resolve collapses the solve result into the terminal update. Any error
// path, including a transport failure or malformed engine data, becomes
// a descriptive error status.
func resolve(outcome solver.Outcome, solveErr error) store.TaskUpdate {
	switch {
	case solveErr != nil:
		return store.TaskUpdate{
			Status: domain.TaskStatusError,
			Error:  solveErr.Error(),
		}
	case outcome.Success && outcome.Token != "":
		return store.TaskUpdate{
			Status:    domain.TaskStatusReady,
			Token:     outcome.Token,
			SolveTime: outcome.SolveTime,
		}
	case outcome.Success:
		return store.TaskUpdate{
			Status: domain.TaskStatusError,
			Error:  "solver returned success without a token",
		}
	default:
		message := outcome.Error
		if message == "" {
			message = "unknown solver error"
		}
		return store.TaskUpdate{
			Status: domain.TaskStatusError,
			Error:  message,
		}
	}
}

// writeTerminal performs the single terminal write for a task. A storage
// failure gets one retry so a transient outage cannot strand the task in
// processing; a task deleted mid-flight makes the write a logged no-op.
func (d *Dispatcher) writeTerminal(task *domain.Task, update store.TaskUpdate, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := d.store.Update(ctx, task.ID, update)
	if err == nil {
		return
	}

	if store.IsNotFoundError(err) {
		logger.Warn("task deleted before completion, dropping result")
		return
	}

	logger.Error("terminal write failed, retrying once", "error", err)

	if err := d.store.Update(ctx, task.ID, update); err != nil {
		if store.IsNotFoundError(err) {
			logger.Warn("task deleted before completion, dropping result")
			return
		}
		logger.Error("terminal write failed after retry, task may remain in processing",
			"error", err)
	}
}
