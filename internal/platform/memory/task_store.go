// Package memory implements the task store on an in-process map. It backs
// tests and single-node deployments that can tolerate losing history on
// restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/solvenet/recaptcha-api/internal/domain"
	"github.com/solvenet/recaptcha-api/internal/store"
)

// TaskStore is a mutex-guarded map of task records keyed by ID. Records
// are copied on the way in and out so callers can never mutate stored
// state directly.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*domain.Task
}

// NewTaskStore creates an empty in-memory task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks: make(map[uuid.UUID]*domain.Task),
	}
}

// Create persists a new task record.
func (s *TaskStore) Create(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("%w: %s", store.ErrDuplicate, task.ID)
	}

	s.tasks[task.ID] = cloneTask(task)
	return nil
}

// Get returns the task with the given ID, or store.ErrNotFound.
func (s *TaskStore) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}

	return cloneTask(task), nil
}

// Update applies a terminal outcome to the stored record.
func (s *TaskStore) Update(ctx context.Context, id uuid.UUID, update store.TaskUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}

	task.Status = update.Status
	task.Token = update.Token
	task.SolveTime = update.SolveTime
	task.Error = update.Error
	task.UpdatedAt = time.Now().UTC()
	return nil
}

// Delete removes the task with the given ID and reports whether a record
// was removed.
func (s *TaskStore) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return false, nil
	}

	delete(s.tasks, id)
	return true, nil
}

// List returns up to limit tasks, most recently created first, optionally
// narrowed to one status.
func (s *TaskStore) List(ctx context.Context, limit int, status domain.TaskStatus) ([]*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]*domain.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		if status != "" && task.Status != status {
			continue
		}
		tasks = append(tasks, cloneTask(task))
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})

	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}

	return tasks, nil
}

// Stats returns aggregate counts and the average solve time over ready
// tasks.
func (s *TaskStore) Stats(ctx context.Context) (*store.TaskStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &store.TaskStats{
		ByStatus: make(map[domain.TaskStatus]int),
	}

	var solveTimeSum float64
	var readyCount int

	for _, task := range s.tasks {
		stats.Total++
		stats.ByStatus[task.Status]++
		if task.Status == domain.TaskStatusReady {
			solveTimeSum += task.SolveTime
			readyCount++
		}
	}

	if readyCount > 0 {
		stats.AverageSolveTime = solveTimeSum / float64(readyCount)
	}

	return stats, nil
}

// PurgeOlderThan deletes tasks created more than age ago.
func (s *TaskStore) PurgeOlderThan(ctx context.Context, age time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-age)

	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int
	for id, task := range s.tasks {
		if task.CreatedAt.Before(cutoff) {
			delete(s.tasks, id)
			deleted++
		}
	}

	return deleted, nil
}

// Close is a no-op for the in-memory store.
func (s *TaskStore) Close() error {
	return nil
}

// cloneTask returns a deep copy of the task record.
func cloneTask(t *domain.Task) *domain.Task {
	clone := *t
	if t.Proxy != nil {
		proxy := *t.Proxy
		clone.Proxy = &proxy
	}
	return &clone
}
