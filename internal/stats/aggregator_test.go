package stats

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvenet/recaptcha-api/internal/domain"
	"github.com/solvenet/recaptcha-api/internal/platform/memory"
	"github.com/solvenet/recaptcha-api/internal/store"
)

// seedTask creates a task in the store and drives it to the requested
// terminal status. An empty status leaves it processing.
func seedTask(t *testing.T, s store.TaskStore, proxy *domain.Proxy, status domain.TaskStatus, token string, solveTime float64, errMsg string) *domain.Task {
	t.Helper()
	ctx := context.Background()

	task, err := domain.NewTask("site-key", "https://example.com", proxy)
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, task))

	switch status {
	case domain.TaskStatusReady:
		require.NoError(t, s.Update(ctx, task.ID, store.TaskUpdate{
			Status: status, Token: token, SolveTime: solveTime,
		}))
	case domain.TaskStatusError:
		require.NoError(t, s.Update(ctx, task.ID, store.TaskUpdate{
			Status: status, Error: errMsg,
		}))
	}

	return task
}

func TestSuccessRate(t *testing.T) {
	t.Parallel()

	s := memory.NewTaskStore()
	a := NewAggregator(s)
	ctx := context.Background()

	rate, err := a.SuccessRate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.0, rate)

	for i := 0; i < 3; i++ {
		seedTask(t, s, nil, domain.TaskStatusReady, "tok", 5, "")
	}
	seedTask(t, s, nil, domain.TaskStatusError, "", 0, "boom")

	rate, err = a.SuccessRate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 75.0, rate)
}

func TestAverageSolveTime(t *testing.T) {
	t.Parallel()

	s := memory.NewTaskStore()
	a := NewAggregator(s)
	ctx := context.Background()

	avg, err := a.AverageSolveTime(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.0, avg)

	seedTask(t, s, nil, domain.TaskStatusReady, "tok", 10, "")
	seedTask(t, s, nil, domain.TaskStatusReady, "tok", 20, "")
	// Error and processing tasks must not contribute.
	seedTask(t, s, nil, domain.TaskStatusError, "", 0, "boom")
	seedTask(t, s, nil, "", "", 0, "")

	avg, err = a.AverageSolveTime(ctx)
	require.NoError(t, err)
	assert.Equal(t, 15.0, avg)
}

func TestErrorDistribution(t *testing.T) {
	t.Parallel()

	s := memory.NewTaskStore()
	a := NewAggregator(s)
	ctx := context.Background()

	seedTask(t, s, nil, domain.TaskStatusError, "", 0, "solve timeout")
	seedTask(t, s, nil, domain.TaskStatusError, "", 0, "solve timeout")
	seedTask(t, s, nil, domain.TaskStatusError, "", 0, "engine unreachable")
	seedTask(t, s, nil, domain.TaskStatusError, "", 0, "")
	seedTask(t, s, nil, domain.TaskStatusReady, "tok", 5, "")

	dist, err := a.ErrorDistribution(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		"solve timeout":      2,
		"engine unreachable": 1,
		"Unknown":            1,
	}, dist)
}

func TestTimeDistribution(t *testing.T) {
	t.Parallel()

	s := memory.NewTaskStore()
	a := NewAggregator(s)
	ctx := context.Background()

	for _, st := range []float64{8.2, 10.5, 15.3} {
		seedTask(t, s, nil, domain.TaskStatusReady, "tok", st, "")
	}
	seedTask(t, s, nil, domain.TaskStatusError, "", 0, "boom")

	dist, err := a.TimeDistribution(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		"0-5s":   0,
		"5-10s":  1,
		"10-15s": 1,
		"15-20s": 1,
		"20-30s": 0,
		"30s+":   0,
	}, dist)
}

func TestBucketFor_Boundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		solveTime float64
		label     string
	}{
		{0, "0-5s"},
		{4.99, "0-5s"},
		{5, "5-10s"},
		{10, "10-15s"},
		{15, "15-20s"},
		{20, "20-30s"},
		{29.99, "20-30s"},
		{30, "30s+"},
		{120, "30s+"},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.label, bucketFor(tc.solveTime), "solve time %v", tc.solveTime)
	}
}

func TestProxyPerformance(t *testing.T) {
	t.Parallel()

	s := memory.NewTaskStore()
	a := NewAggregator(s)
	ctx := context.Background()

	ipv4 := &domain.Proxy{Protocol: "http", Host: "p4.net", Port: "8080", Class: domain.ProxyClassIPv4}
	pool := &domain.Proxy{Protocol: "http", Host: "pool.net", Port: "3128", Class: domain.ProxyClassPool}

	seedTask(t, s, ipv4, domain.TaskStatusReady, "tok", 10, "")
	seedTask(t, s, ipv4, domain.TaskStatusReady, "tok", 20, "")
	seedTask(t, s, ipv4, domain.TaskStatusError, "", 0, "boom")
	seedTask(t, s, pool, domain.TaskStatusReady, "tok", 7.5, "")
	seedTask(t, s, nil, domain.TaskStatusError, "", 0, "boom")

	perf, err := a.ProxyPerformance(ctx)
	require.NoError(t, err)
	require.Len(t, perf, 3)

	v4 := perf[domain.ProxyClassIPv4]
	assert.Equal(t, 3, v4.Total)
	assert.Equal(t, 2, v4.Successful)
	assert.Equal(t, 66.67, v4.SuccessRate)
	assert.Equal(t, 15.0, v4.AverageSolveTime)
	assert.Equal(t, 10.0, v4.MinSolveTime)
	assert.Equal(t, 20.0, v4.MaxSolveTime)

	p := perf[domain.ProxyClassPool]
	assert.Equal(t, 1, p.Total)
	assert.Equal(t, 100.0, p.SuccessRate)
	assert.Equal(t, 7.5, p.MinSolveTime)

	none := perf[domain.ProxyClassNone]
	assert.Equal(t, 1, none.Total)
	assert.Equal(t, 0, none.Successful)
	assert.Equal(t, 0.0, none.SuccessRate)
	assert.Equal(t, 0.0, none.AverageSolveTime)
}

func TestTokenStats(t *testing.T) {
	t.Parallel()

	s := memory.NewTaskStore()
	a := NewAggregator(s)

	seedTask(t, s, nil, domain.TaskStatusReady, "aaaa", 5, "")
	seedTask(t, s, nil, domain.TaskStatusReady, "aaaa", 5, "")
	seedTask(t, s, nil, domain.TaskStatusReady, "bbbbbbbb", 5, "")
	seedTask(t, s, nil, domain.TaskStatusError, "", 0, "boom")

	report, err := a.Report(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Tokens.Total)
	assert.Equal(t, 2, report.Tokens.Unique)
	// (4 + 4 + 8) / 3
	assert.InDelta(t, 5.33, report.Tokens.AverageLength, 0.01)
}

func TestReport(t *testing.T) {
	t.Parallel()

	s := memory.NewTaskStore()
	a := NewAggregator(s)
	ctx := context.Background()

	seedTask(t, s, nil, domain.TaskStatusReady, "tok", 6, "")
	seedTask(t, s, nil, domain.TaskStatusError, "", 0, "boom")
	seedTask(t, s, nil, "", "", 0, "")

	report, err := a.Report(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Metadata.TotalTasks)
	assert.False(t, report.Metadata.GeneratedAt.IsZero())
	assert.Equal(t, 33.33, report.SuccessRate)
	assert.Equal(t, 6.0, report.AverageSolveTime)
	assert.Equal(t, 3, report.Storage.Total)
	assert.Equal(t, 1, report.Storage.ByStatus[domain.TaskStatusProcessing])
	assert.Equal(t, 1, report.TimeDistribution["5-10s"])
	assert.Equal(t, map[string]int{"boom": 1}, report.ErrorDistribution)
}
