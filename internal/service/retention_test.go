package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvenet/recaptcha-api/internal/domain"
	"github.com/solvenet/recaptcha-api/internal/platform/memory"
)

func TestRetentionSweeper_RemovesOldTasks(t *testing.T) {
	t.Parallel()

	taskStore := memory.NewTaskStore()
	ctx := context.Background()

	old, err := domain.NewTask("site-key", "https://example.com", nil)
	require.NoError(t, err)
	old.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, taskStore.Create(ctx, old))

	recent, err := domain.NewTask("site-key", "https://example.com", nil)
	require.NoError(t, err)
	require.NoError(t, taskStore.Create(ctx, recent))

	sweeper := NewRetentionSweeper(taskStore, time.Hour, 10*time.Millisecond, testLogger())
	sweeper.Start()
	defer sweeper.Stop()

	require.Eventually(t, func() bool {
		_, err := taskStore.Get(ctx, old.ID)
		return err != nil
	}, time.Second, 10*time.Millisecond, "old task was not swept")

	_, err = taskStore.Get(ctx, recent.ID)
	assert.NoError(t, err)
}

func TestRetentionSweeper_DisabledWithZeroMaxAge(t *testing.T) {
	t.Parallel()

	sweeper := NewRetentionSweeper(memory.NewTaskStore(), 0, time.Millisecond, testLogger())
	sweeper.Start()
	// Stop must be safe when the loop never started.
	sweeper.Stop()
}

func TestRetentionSweeper_StopTerminatesLoop(t *testing.T) {
	t.Parallel()

	sweeper := NewRetentionSweeper(memory.NewTaskStore(), time.Hour, time.Millisecond, testLogger())
	sweeper.Start()

	done := make(chan struct{})
	go func() {
		sweeper.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
