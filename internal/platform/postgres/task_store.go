// Package postgres implements the task store on PostgreSQL through the
// pgx stdlib driver. The tasks table is managed by the goose migrations
// under migrations/.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/solvenet/recaptcha-api/internal/domain"
	"github.com/solvenet/recaptcha-api/internal/platform/logger"
	"github.com/solvenet/recaptcha-api/internal/store"
)

// TaskStore implements the store.TaskStore interface using PostgreSQL.
type TaskStore struct {
	db store.DBTX
}

// NewTaskStore creates a new postgres-backed TaskStore.
func NewTaskStore(db store.DBTX) *TaskStore {
	return &TaskStore{
		db: db,
	}
}

// Create persists a new task record.
func (s *TaskStore) Create(ctx context.Context, task *domain.Task) error {
	log := logger.FromContext(ctx)

	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO tasks (
			id, site_key, page_url,
			proxy_protocol, proxy_host, proxy_port, proxy_username, proxy_password, proxy_class,
			status, token, solve_time, error, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	var protocol, host, port, username, password, class sql.NullString
	if task.Proxy != nil {
		protocol = nullString(task.Proxy.Protocol)
		host = nullString(task.Proxy.Host)
		port = nullString(task.Proxy.Port)
		username = nullString(task.Proxy.Username)
		password = nullString(task.Proxy.Password)
		class = nullString(task.Proxy.Class)
	}

	_, err := s.db.ExecContext(ctx, query,
		task.ID,
		task.SiteKey,
		task.PageURL,
		protocol, host, port, username, password, class,
		task.Status,
		nullString(task.Token),
		nullFloat(task.SolveTime, task.Status == domain.TaskStatusReady),
		nullString(task.Error),
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create task", "task_id", task.ID, "error", err)
		return MapError(err)
	}

	return nil
}

// Get returns the task with the given ID, or store.ErrNotFound.
func (s *TaskStore) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `
		SELECT id, site_key, page_url,
			proxy_protocol, proxy_host, proxy_port, proxy_username, proxy_password, proxy_class,
			status, token, solve_time, error, created_at, updated_at
		FROM tasks
		WHERE id = $1
	`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, MapError(err)
	}

	return task, nil
}

// Update applies a terminal outcome to the task with the given ID.
func (s *TaskStore) Update(ctx context.Context, id uuid.UUID, update store.TaskUpdate) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE tasks
		SET status = $1, token = $2, solve_time = $3, error = $4, updated_at = $5
		WHERE id = $6
	`

	result, err := s.db.ExecContext(ctx, query,
		update.Status,
		nullString(update.Token),
		nullFloat(update.SolveTime, update.Status == domain.TaskStatusReady),
		nullString(update.Error),
		time.Now().UTC(),
		id,
	)
	if err != nil {
		log.Error("failed to update task", "task_id", id, "status", update.Status, "error", err)
		return MapError(err)
	}

	return CheckRowsAffected(result)
}

// Delete removes the task with the given ID.
func (s *TaskStore) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return false, MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// List returns up to limit tasks ordered most recently created first,
// optionally narrowed to one status. A non-positive limit returns the
// full record set.
func (s *TaskStore) List(ctx context.Context, limit int, status domain.TaskStatus) ([]*domain.Task, error) {
	query := `
		SELECT id, site_key, page_url,
			proxy_protocol, proxy_host, proxy_port, proxy_username, proxy_password, proxy_class,
			status, token, solve_time, error, created_at, updated_at
		FROM tasks
	`
	var args []any

	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}

	query += ` ORDER BY created_at DESC`

	if limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	return tasks, nil
}

// Stats returns aggregate counts and the average solve time over ready
// tasks.
func (s *TaskStore) Stats(ctx context.Context) (*store.TaskStats, error) {
	stats := &store.TaskStats{
		ByStatus: make(map[domain.TaskStatus]int),
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var status domain.TaskStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		stats.ByStatus[status] = count
		stats.Total += count
	}

	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	var avg sql.NullFloat64
	err = s.db.QueryRowContext(ctx,
		`SELECT AVG(solve_time) FROM tasks WHERE solve_time IS NOT NULL`,
	).Scan(&avg)
	if err != nil {
		return nil, MapError(err)
	}
	stats.AverageSolveTime = avg.Float64

	return stats, nil
}

// PurgeOlderThan deletes tasks created more than age ago.
func (s *TaskStore) PurgeOlderThan(ctx context.Context, age time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-age)

	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rowsAffected), nil
}

// Close is a no-op; the lifecycle of the underlying *sql.DB belongs to
// the application.
func (s *TaskStore) Close() error {
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanTask.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTask reads one task row into a domain.Task, reassembling the
// optional proxy descriptor from its nullable columns.
func scanTask(row rowScanner) (*domain.Task, error) {
	var task domain.Task
	var protocol, host, port, username, password, class sql.NullString
	var token, errMsg sql.NullString
	var solveTime sql.NullFloat64

	err := row.Scan(
		&task.ID,
		&task.SiteKey,
		&task.PageURL,
		&protocol, &host, &port, &username, &password, &class,
		&task.Status,
		&token,
		&solveTime,
		&errMsg,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if host.Valid {
		task.Proxy = &domain.Proxy{
			Protocol: protocol.String,
			Host:     host.String,
			Port:     port.String,
			Username: username.String,
			Password: password.String,
			Class:    class.String,
		}
	}

	task.Token = token.String
	task.SolveTime = solveTime.Float64
	task.Error = errMsg.String

	return &task, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f float64, valid bool) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f, Valid: valid}
}
