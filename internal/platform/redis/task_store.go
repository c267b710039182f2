// Package redis implements the task store on Redis. Records are stored
// as JSON strings keyed by task ID, with a sorted set indexing IDs by
// creation time so listing and retention sweeps stay ordered without
// scanning every key.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/solvenet/recaptcha-api/internal/config"
	"github.com/solvenet/recaptcha-api/internal/domain"
	"github.com/solvenet/recaptcha-api/internal/store"
)

const (
	// Key layout
	taskPrefix = "recaptcha:task:"
	indexKey   = "recaptcha:tasks:by_created"
)

// TaskStore implements the store.TaskStore interface using Redis.
type TaskStore struct {
	client *redis.Client
}

// NewTaskStore creates a redis-backed TaskStore and verifies the
// connection with a ping.
func NewTaskStore(ctx context.Context, cfg config.RedisConfig) (*TaskStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStorageUnavailable, err)
	}

	return &TaskStore{client: client}, nil
}

func taskKey(id uuid.UUID) string {
	return taskPrefix + id.String()
}

// Create persists a new task record.
func (s *TaskStore) Create(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	// SETNX guards against ID collisions; the index insert rides the same
	// pipeline so a created task is always listable.
	created, err := s.client.SetNX(ctx, taskKey(task.ID), data, 0).Result()
	if err != nil {
		return mapError(err)
	}
	if !created {
		return fmt.Errorf("%w: %s", store.ErrDuplicate, task.ID)
	}

	err = s.client.ZAdd(ctx, indexKey, redis.Z{
		Score:  float64(task.CreatedAt.UnixNano()),
		Member: task.ID.String(),
	}).Err()
	if err != nil {
		return mapError(err)
	}

	return nil
}

// Get returns the task with the given ID, or store.ErrNotFound.
func (s *TaskStore) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	data, err := s.client.Get(ctx, taskKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
		}
		return nil, mapError(err)
	}

	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task %s: %w", id, err)
	}

	return &task, nil
}

// Update applies a terminal outcome to the stored record. The read and
// write run inside a WATCH transaction so a concurrent delete cannot
// resurrect the record.
func (s *TaskStore) Update(ctx context.Context, id uuid.UUID, update store.TaskUpdate) error {
	key := taskKey(id)

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return fmt.Errorf("%w: %s", store.ErrNotFound, id)
			}
			return err
		}

		var task domain.Task
		if err := json.Unmarshal(data, &task); err != nil {
			return fmt.Errorf("failed to unmarshal task %s: %w", id, err)
		}

		task.Status = update.Status
		task.Token = update.Token
		task.SolveTime = update.SolveTime
		task.Error = update.Error
		task.UpdatedAt = time.Now().UTC()

		updated, err := json.Marshal(&task)
		if err != nil {
			return fmt.Errorf("failed to marshal task %s: %w", id, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txn, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return mapError(err)
	}

	return nil
}

// Delete removes the task with the given ID.
func (s *TaskStore) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	pipe := s.client.TxPipeline()
	delCmd := pipe.Del(ctx, taskKey(id))
	pipe.ZRem(ctx, indexKey, id.String())

	if _, err := pipe.Exec(ctx); err != nil {
		return false, mapError(err)
	}

	return delCmd.Val() > 0, nil
}

// List returns up to limit tasks ordered most recently created first,
// optionally narrowed to one status. Status filtering happens client-side
// after the index walk; the record set is expected to stay small enough
// for that under the retention sweep.
func (s *TaskStore) List(ctx context.Context, limit int, status domain.TaskStatus) ([]*domain.Task, error) {
	ids, err := s.client.ZRevRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, mapError(err)
	}

	var tasks []*domain.Task
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}

		task, err := s.Get(ctx, id)
		if err != nil {
			if store.IsNotFoundError(err) {
				// Index entry outlived the record; drop it lazily.
				s.client.ZRem(ctx, indexKey, raw)
				continue
			}
			return nil, err
		}

		if status != "" && task.Status != status {
			continue
		}

		tasks = append(tasks, task)
		if limit > 0 && len(tasks) >= limit {
			break
		}
	}

	return tasks, nil
}

// Stats returns aggregate counts and the average solve time over ready
// tasks.
func (s *TaskStore) Stats(ctx context.Context) (*store.TaskStats, error) {
	tasks, err := s.List(ctx, 0, "")
	if err != nil {
		return nil, err
	}

	stats := &store.TaskStats{
		ByStatus: make(map[domain.TaskStatus]int),
	}

	var solveTimeSum float64
	var readyCount int

	for _, task := range tasks {
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
	maxScore := fmt.Sprintf("%d", cutoff.UnixNano())

	ids, err := s.client.ZRangeByScore(ctx, indexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: maxScore,
	}).Result()
	if err != nil {
		return 0, mapError(err)
	}

	if len(ids) == 0 {
		return 0, nil
	}

	pipe := s.client.TxPipeline()
	for _, raw := range ids {
		pipe.Del(ctx, taskPrefix+raw)
	}
	pipe.ZRemRangeByScore(ctx, indexKey, "-inf", maxScore)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, mapError(err)
	}

	return len(ids), nil
}

// Close releases the redis client.
func (s *TaskStore) Close() error {
	return s.client.Close()
}

// mapError wraps transport-level redis failures as storage-unavailable.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", store.ErrStorageUnavailable, err)
}
