package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/solvenet/recaptcha-api/internal/store"
)

// RetentionSweeper periodically deletes task records older than the
// configured age. With a zero MaxAge the sweeper is disabled.
type RetentionSweeper struct {
	store    store.TaskStore
	maxAge   time.Duration
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRetentionSweeper creates a sweeper over the given store.
func NewRetentionSweeper(taskStore store.TaskStore, maxAge, interval time.Duration, logger *slog.Logger) *RetentionSweeper {
	if interval <= 0 {
		interval = time.Hour
	}

	return &RetentionSweeper{
		store:    taskStore,
		maxAge:   maxAge,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the background sweep loop. It is a no-op when retention
// is disabled.
func (r *RetentionSweeper) Start() {
	if r.maxAge <= 0 {
		r.logger.Info("task retention sweep disabled")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})

	r.logger.Info("task retention sweep started",
		"max_age", r.maxAge,
		"interval", r.interval)

	go r.run(ctx)
}

// Stop terminates the sweep loop and waits for it to exit.
func (r *RetentionSweeper) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}

func (r *RetentionSweeper) run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *RetentionSweeper) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	deleted, err := r.store.PurgeOlderThan(sweepCtx, r.maxAge)
	if err != nil {
		r.logger.Error("retention sweep failed", "error", err)
		return
	}

	if deleted > 0 {
		r.logger.Info("retention sweep removed old tasks", "count", deleted)
	}
}
