// Package service implements the request-facing orchestration between
// the HTTP layer and the queue internals: task admission, status
// queries, deletion, and the retention sweep.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/solvenet/recaptcha-api/internal/domain"
	"github.com/solvenet/recaptcha-api/internal/dispatcher"
	"github.com/solvenet/recaptcha-api/internal/proxy"
	"github.com/solvenet/recaptcha-api/internal/solver"
	"github.com/solvenet/recaptcha-api/internal/store"
)

// Snapshot is the status-shaped view of a task returned to pollers.
// Token and SolveTime are present only for ready tasks; Error only for
// failed ones.
type Snapshot struct {
	TaskID    string            `json:"taskId"`
	Status    domain.TaskStatus `json:"status"`
	Token     string            `json:"token,omitempty"`
	SolveTime *float64          `json:"solveTime,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// TaskService validates submissions, creates records, hands them to the
// dispatcher, and serves status queries and deletion.
type TaskService struct {
	store      store.TaskStore
	dispatcher *dispatcher.Dispatcher
	selector   *proxy.Selector
	solver     solver.Solver
	logger     *slog.Logger
}

// NewTaskService creates a TaskService.
// Returns an error if any dependency is nil.
func NewTaskService(
	taskStore store.TaskStore,
	disp *dispatcher.Dispatcher,
	selector *proxy.Selector,
	s solver.Solver,
	logger *slog.Logger,
) (*TaskService, error) {
	if taskStore == nil {
		return nil, errors.New("task store cannot be nil")
	}
	if disp == nil {
		return nil, errors.New("dispatcher cannot be nil")
	}
	if selector == nil {
		return nil, errors.New("proxy selector cannot be nil")
	}
	if s == nil {
		return nil, errors.New("solver cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &TaskService{
		store:      taskStore,
		dispatcher: disp,
		selector:   selector,
		solver:     s,
		logger:     logger,
	}, nil
}

// Submit admits a new solving task. It validates the request, creates
// the record in the processing status, schedules the asynchronous solve,
// and returns the task ID. A submission without an explicit proxy gets
// one picked from the configured pool (nil when the pool is empty).
func (s *TaskService) Submit(ctx context.Context, siteKey, pageURL string, explicitProxy *domain.Proxy) (uuid.UUID, error) {
	if siteKey == "" {
		return uuid.Nil, domain.NewValidationError("siteKey", "is required", domain.ErrValidation)
	}
	if pageURL == "" {
		return uuid.Nil, domain.NewValidationError("pageURL", "is required", domain.ErrValidation)
	}

	taskProxy := explicitProxy
	if taskProxy == nil {
		taskProxy = s.selector.Select("")
	}

	task, err := domain.NewTask(siteKey, pageURL, taskProxy)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	if err := s.store.Create(ctx, task); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.dispatcher.Schedule(task, s.solver)

	s.logger.Info("task admitted",
		"task_id", task.ID,
		"page_url", task.PageURL,
		"proxy_class", task.ProxyClass())

	return task.ID, nil
}

// Query returns the current status snapshot for a task. The snapshot
// shape depends on the status; a query racing the terminal write may
// observe either side of it.
func (s *TaskService) Query(ctx context.Context, id uuid.UUID) (*Snapshot, error) {
	task, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	snapshot := &Snapshot{
		TaskID: task.ID.String(),
		Status: task.Status,
	}

	switch task.Status {
	case domain.TaskStatusReady:
		snapshot.Token = task.Token
		solveTime := task.SolveTime
		snapshot.SolveTime = &solveTime
	case domain.TaskStatusError:
		snapshot.Error = task.Error
	}

	return snapshot, nil
}

// Remove deletes a task record. Deletion of an in-flight task is
// permitted; its eventual terminal write becomes a no-op.
func (s *TaskService) Remove(ctx context.Context, id uuid.UUID) (bool, error) {
	removed, err := s.store.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete task: %w", err)
	}

	if removed {
		s.logger.Info("task deleted", "task_id", id)
	}

	return removed, nil
}
