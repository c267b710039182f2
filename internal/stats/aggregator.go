// Package stats computes read-only analytics over the full stored task
// history: success rate, latency distribution, proxy-segmented
// performance, and error frequency.
package stats

import (
	"context"
	"math"
	"time"

	"github.com/solvenet/recaptcha-api/internal/domain"
	"github.com/solvenet/recaptcha-api/internal/store"
)

// Time-distribution bucket labels, in ascending order of their lower
// bound. Bucket boundaries are fixed at 0/5/10/15/20/30 seconds.
var bucketLabels = []string{"0-5s", "5-10s", "10-15s", "15-20s", "20-30s", "30s+"}

var bucketBounds = []float64{5, 10, 15, 20, 30}

// ProxyPerformance summarizes outcomes for one proxy class.
type ProxyPerformance struct {
	Total            int     `json:"total_runs"`
	Successful       int     `json:"successful"`
	SuccessRate      float64 `json:"success_rate"`
	AverageSolveTime float64 `json:"average_solve_time"`
	MinSolveTime     float64 `json:"min_solve_time"`
	MaxSolveTime     float64 `json:"max_solve_time"`
}

// TokenStats summarizes the tokens extracted by ready tasks.
type TokenStats struct {
	Total         int     `json:"total_tokens_extracted"`
	Unique        int     `json:"unique_tokens"`
	AverageLength float64 `json:"average_token_length"`
}

// ReportMetadata describes when and over how many records a report was
// generated.
type ReportMetadata struct {
	GeneratedAt time.Time `json:"generated_at"`
	TotalTasks  int       `json:"total_tasks"`
}

// StoreStats mirrors the store-level quick counts inside the report.
type StoreStats struct {
	Total            int                       `json:"total_tasks"`
	ByStatus         map[domain.TaskStatus]int `json:"by_status"`
	AverageSolveTime float64                   `json:"average_solve_time"`
}

// Report is the structured snapshot combining every aggregate.
type Report struct {
	Metadata          ReportMetadata              `json:"metadata"`
	SuccessRate       float64                     `json:"success_rate"`
	AverageSolveTime  float64                     `json:"average_solve_time"`
	Storage           StoreStats                  `json:"storage"`
	ProxyPerformance  map[string]ProxyPerformance `json:"proxy_performance"`
	TimeDistribution  map[string]int              `json:"time_distribution"`
	ErrorDistribution map[string]int              `json:"error_distribution"`
	Tokens            TokenStats                  `json:"token_statistics"`
}

// Aggregator computes analytics over the full record set of a TaskStore.
type Aggregator struct {
	store store.TaskStore
}

// NewAggregator creates an Aggregator reading from the given store.
func NewAggregator(taskStore store.TaskStore) *Aggregator {
	return &Aggregator{store: taskStore}
}

// snapshot loads the full record history.
func (a *Aggregator) snapshot(ctx context.Context) ([]*domain.Task, error) {
	return a.store.List(ctx, 0, "")
}

// SuccessRate returns ready_count / total_count * 100, or 0 for an empty
// store.
func (a *Aggregator) SuccessRate(ctx context.Context) (float64, error) {
	tasks, err := a.snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return successRate(tasks), nil
}

// AverageSolveTime returns the mean solve time over ready tasks, or 0
// when none exist.
func (a *Aggregator) AverageSolveTime(ctx context.Context) (float64, error) {
	tasks, err := a.snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return averageSolveTime(tasks), nil
}

// ErrorDistribution maps each error message to its occurrence count.
func (a *Aggregator) ErrorDistribution(ctx context.Context) (map[string]int, error) {
	tasks, err := a.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return errorDistribution(tasks), nil
}

// ProxyPerformance segments outcomes by proxy class. Only classes with
// at least one record are included.
func (a *Aggregator) ProxyPerformance(ctx context.Context) (map[string]ProxyPerformance, error) {
	tasks, err := a.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return proxyPerformance(tasks), nil
}

// TimeDistribution buckets the solve times of ready tasks.
func (a *Aggregator) TimeDistribution(ctx context.Context) (map[string]int, error) {
	tasks, err := a.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return timeDistribution(tasks), nil
}

// Report combines every aggregate with generation metadata and the
// store-level quick counts.
func (a *Aggregator) Report(ctx context.Context) (*Report, error) {
	tasks, err := a.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	storeStats, err := a.store.Stats(ctx)
	if err != nil {
		return nil, err
	}

	return &Report{
		Metadata: ReportMetadata{
			GeneratedAt: time.Now().UTC(),
			TotalTasks:  len(tasks),
		},
		SuccessRate:      round2(successRate(tasks)),
		AverageSolveTime: round2(averageSolveTime(tasks)),
		Storage: StoreStats{
			Total:            storeStats.Total,
			ByStatus:         storeStats.ByStatus,
			AverageSolveTime: round2(storeStats.AverageSolveTime),
		},
		ProxyPerformance:  proxyPerformance(tasks),
		TimeDistribution:  timeDistribution(tasks),
		ErrorDistribution: errorDistribution(tasks),
		Tokens:            tokenStats(tasks),
	}, nil
}

func successRate(tasks []*domain.Task) float64 {
	if len(tasks) == 0 {
		return 0
	}

	var ready int
	for _, t := range tasks {
		if t.Status == domain.TaskStatusReady {
			ready++
		}
	}

	return float64(ready) / float64(len(tasks)) * 100
}

func averageSolveTime(tasks []*domain.Task) float64 {
	var sum float64
	var count int
	for _, t := range tasks {
		if t.Status == domain.TaskStatusReady {
			sum += t.SolveTime
			count++
		}
	}

	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func errorDistribution(tasks []*domain.Task) map[string]int {
	dist := make(map[string]int)
	for _, t := range tasks {
		if t.Status == domain.TaskStatusError {
			message := t.Error
			if message == "" {
				message = "Unknown"
			}
			dist[message]++
		}
	}
	return dist
}

func proxyPerformance(tasks []*domain.Task) map[string]ProxyPerformance {
	type acc struct {
		total      int
		successful int
		solveTimes []float64
	}

	groups := make(map[string]*acc)
	for _, t := range tasks {
		label := t.ProxyClass()
		g, ok := groups[label]
		if !ok {
			g = &acc{}
			groups[label] = g
		}

		g.total++
		if t.Status == domain.TaskStatusReady {
			g.successful++
			g.solveTimes = append(g.solveTimes, t.SolveTime)
		}
	}

	perf := make(map[string]ProxyPerformance, len(groups))
	for label, g := range groups {
		p := ProxyPerformance{
			Total:       g.total,
			Successful:  g.successful,
			SuccessRate: round2(float64(g.successful) / float64(g.total) * 100),
		}

		if len(g.solveTimes) > 0 {
			var sum float64
			p.MinSolveTime = g.solveTimes[0]
			p.MaxSolveTime = g.solveTimes[0]
			for _, st := range g.solveTimes {
				sum += st
				p.MinSolveTime = math.Min(p.MinSolveTime, st)
				p.MaxSolveTime = math.Max(p.MaxSolveTime, st)
			}
			p.AverageSolveTime = round2(sum / float64(len(g.solveTimes)))
		}

		perf[label] = p
	}

	return perf
}

func timeDistribution(tasks []*domain.Task) map[string]int {
	buckets := make(map[string]int, len(bucketLabels))
	for _, label := range bucketLabels {
		buckets[label] = 0
	}

	for _, t := range tasks {
		if t.Status != domain.TaskStatusReady {
			continue
		}
		buckets[bucketFor(t.SolveTime)]++
	}

	return buckets
}

// bucketFor returns the label of the half-open bucket containing the
// given solve time.
func bucketFor(solveTime float64) string {
	for i, bound := range bucketBounds {
		if solveTime < bound {
			return bucketLabels[i]
		}
	}
	return bucketLabels[len(bucketLabels)-1]
}

func tokenStats(tasks []*domain.Task) TokenStats {
	seen := make(map[string]struct{})
	var total, lengthSum int

	for _, t := range tasks {
		if t.Status != domain.TaskStatusReady || t.Token == "" {
			continue
		}
		total++
		lengthSum += len(t.Token)
		seen[t.Token] = struct{}{}
	}

	stats := TokenStats{
		Total:  total,
		Unique: len(seen),
	}
	if total > 0 {
		stats.AverageLength = float64(lengthSum) / float64(total)
	}

	return stats
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
