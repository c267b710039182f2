package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvenet/recaptcha-api/internal/config"
	"github.com/solvenet/recaptcha-api/internal/dispatcher"
	"github.com/solvenet/recaptcha-api/internal/domain"
	"github.com/solvenet/recaptcha-api/internal/platform/memory"
	"github.com/solvenet/recaptcha-api/internal/proxy"
	"github.com/solvenet/recaptcha-api/internal/solver"
	"github.com/solvenet/recaptcha-api/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store      *memory.TaskStore
	dispatcher *dispatcher.Dispatcher
	service    *TaskService
}

func newFixture(t *testing.T, proxyCfg config.ProxyConfig, s solver.Solver) *fixture {
	t.Helper()

	taskStore := memory.NewTaskStore()
	disp := dispatcher.New(taskStore, dispatcher.DefaultConfig(), testLogger())
	selector := proxy.NewSelector(proxyCfg, nil, testLogger())

	if s == nil {
		s = solver.Func(func(ctx context.Context, siteKey, pageURL string, p *domain.Proxy) (solver.Outcome, error) {
			return solver.Outcome{Success: true, Token: "tok", SolveTime: 1}, nil
		})
	}

	svc, err := NewTaskService(taskStore, disp, selector, s, testLogger())
	require.NoError(t, err)

	return &fixture{store: taskStore, dispatcher: disp, service: svc}
}

func TestNewTaskService_NilDependencies(t *testing.T) {
	t.Parallel()

	taskStore := memory.NewTaskStore()
	disp := dispatcher.New(taskStore, dispatcher.DefaultConfig(), testLogger())
	selector := proxy.NewSelector(config.ProxyConfig{}, nil, testLogger())
	s := solver.Func(func(ctx context.Context, siteKey, pageURL string, p *domain.Proxy) (solver.Outcome, error) {
		return solver.Outcome{}, nil
	})
	logger := testLogger()

	_, err := NewTaskService(nil, disp, selector, s, logger)
	assert.Error(t, err)

	_, err = NewTaskService(taskStore, nil, selector, s, logger)
	assert.Error(t, err)

	_, err = NewTaskService(taskStore, disp, nil, s, logger)
	assert.Error(t, err)

	_, err = NewTaskService(taskStore, disp, selector, nil, logger)
	assert.Error(t, err)

	_, err = NewTaskService(taskStore, disp, selector, s, nil)
	assert.Error(t, err)
}

func TestSubmit_ValidationErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.ProxyConfig{}, nil)
	ctx := context.Background()

	_, err := f.service.Submit(ctx, "", "https://example.com", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.service.Submit(ctx, "site-key", "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)

	var validationErr *domain.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "pageURL", validationErr.Field)
}

func TestSubmit_CreatesProcessingTaskAndSchedules(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.ProxyConfig{}, nil)
	ctx := context.Background()

	id, err := f.service.Submit(ctx, "site-key", "https://example.com", nil)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	f.dispatcher.Wait()

	task, err := f.store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusReady, task.Status)
	assert.Equal(t, "tok", task.Token)
}

func TestSubmit_PicksProxyFromPool(t *testing.T) {
	t.Parallel()

	proxyCfg := config.ProxyConfig{
		Pool: []string{"pool.proxy.net:3128"},
	}

	var seen *domain.Proxy
	done := make(chan struct{})
	s := solver.Func(func(ctx context.Context, siteKey, pageURL string, p *domain.Proxy) (solver.Outcome, error) {
		seen = p
		close(done)
		return solver.Outcome{Success: true, Token: "tok", SolveTime: 1}, nil
	})

	f := newFixture(t, proxyCfg, s)

	id, err := f.service.Submit(context.Background(), "site-key", "https://example.com", nil)
	require.NoError(t, err)

	<-done
	f.dispatcher.Wait()

	require.NotNil(t, seen)
	assert.Equal(t, "pool.proxy.net", seen.Host)

	task, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, task.Proxy)
	assert.Equal(t, domain.ProxyClassPool, task.Proxy.Class)
}

func TestSubmit_ExplicitProxyWinsOverPool(t *testing.T) {
	t.Parallel()

	proxyCfg := config.ProxyConfig{
		Pool: []string{"pool.proxy.net:3128"},
	}

	f := newFixture(t, proxyCfg, nil)

	explicit := &domain.Proxy{
		Protocol: "http",
		Host:     "explicit.proxy.net",
		Port:     "8080",
		Class:    domain.ProxyClassPool,
	}

	id, err := f.service.Submit(context.Background(), "site-key", "https://example.com", explicit)
	require.NoError(t, err)
	f.dispatcher.Wait()

	task, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, task.Proxy)
	assert.Equal(t, "explicit.proxy.net", task.Proxy.Host)
}

func TestQuery_SnapshotShapes(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	s := solver.Func(func(ctx context.Context, siteKey, pageURL string, p *domain.Proxy) (solver.Outcome, error) {
		<-block
		return solver.Outcome{Success: true, Token: "tok-ready", SolveTime: 4.2}, nil
	})

	f := newFixture(t, config.ProxyConfig{}, s)
	ctx := context.Background()

	id, err := f.service.Submit(ctx, "site-key", "https://example.com", nil)
	require.NoError(t, err)

	snap, err := f.service.Query(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusProcessing, snap.Status)
	assert.Empty(t, snap.Token)
	assert.Nil(t, snap.SolveTime)
	assert.Empty(t, snap.Error)

	close(block)
	f.dispatcher.Wait()

	snap, err = f.service.Query(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusReady, snap.Status)
	assert.Equal(t, "tok-ready", snap.Token)
	require.NotNil(t, snap.SolveTime)
	assert.Equal(t, 4.2, *snap.SolveTime)
	assert.Empty(t, snap.Error)
}

func TestQuery_ErrorSnapshot(t *testing.T) {
	t.Parallel()

	s := solver.Func(func(ctx context.Context, siteKey, pageURL string, p *domain.Proxy) (solver.Outcome, error) {
		return solver.Outcome{}, errors.New("engine unreachable")
	})

	f := newFixture(t, config.ProxyConfig{}, s)
	ctx := context.Background()

	id, err := f.service.Submit(ctx, "site-key", "https://example.com", nil)
	require.NoError(t, err)
	f.dispatcher.Wait()

	snap, err := f.service.Query(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusError, snap.Status)
	assert.Equal(t, "engine unreachable", snap.Error)
	assert.Empty(t, snap.Token)
	assert.Nil(t, snap.SolveTime)
}

func TestQuery_NotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.ProxyConfig{}, nil)

	_, err := f.service.Query(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, store.IsNotFoundError(err))
}

func TestRemove(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.ProxyConfig{}, nil)
	ctx := context.Background()

	id, err := f.service.Submit(ctx, "site-key", "https://example.com", nil)
	require.NoError(t, err)
	f.dispatcher.Wait()

	removed, err := f.service.Remove(ctx, id)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = f.service.Remove(ctx, id)
	require.NoError(t, err)
	assert.False(t, removed)
}
