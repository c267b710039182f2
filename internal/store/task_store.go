package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/solvenet/recaptcha-api/internal/domain"
)

// TaskUpdate carries the terminal outcome applied to a task record.
// Token and SolveTime are meaningful only for domain.TaskStatusReady;
// Error only for domain.TaskStatusError.
type TaskUpdate struct {
	Status    domain.TaskStatus
	Token     string
	SolveTime float64
	Error     string
}

// TaskStats summarizes the stored record set.
type TaskStats struct {
	Total            int
	ByStatus         map[domain.TaskStatus]int
	AverageSolveTime float64
}

// TaskStore defines the contract for durable, keyed task storage.
// Implementations must make every write durable before returning and must
// serialize concurrent writes to the same ID; writes to distinct IDs must
// not block each other.
//
// The store does not enforce status monotonicity. The dispatcher is the
// only component issuing terminal updates and guarantees single-call
// semantics per task.
type TaskStore interface {
	// Create persists a new task record. Returns ErrDuplicate if a record
	// with the same ID already exists and ErrInvalidEntity if the task
	// fails validation.
	Create(ctx context.Context, task *domain.Task) error

	// Get returns the task with the given ID, or ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// Update applies a terminal outcome to the task with the given ID,
	// refreshing its updated_at timestamp. Returns ErrNotFound if the ID
	// is absent.
	Update(ctx context.Context, id uuid.UUID, update TaskUpdate) error

	// Delete removes the task with the given ID. The returned bool reports
	// whether a record was removed; an unknown ID is not an error.
	Delete(ctx context.Context, id uuid.UUID) (bool, error)

	// List returns up to limit tasks ordered most recently created first.
	// A non-empty status narrows the result to tasks in that status.
	List(ctx context.Context, limit int, status domain.TaskStatus) ([]*domain.Task, error)

	// Stats returns aggregate counts and the average solve time over
	// ready tasks.
	Stats(ctx context.Context) (*TaskStats, error)

	// PurgeOlderThan deletes tasks created more than age ago and returns
	// the number of records removed.
	PurgeOlderThan(ctx context.Context, age time.Duration) (int, error)

	// Close releases any resources held by the store.
	Close() error
}
