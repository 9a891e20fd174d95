// Package jobsrunner fans an interview matrix (agents × scenarios ×
// models × iterations) out across a bounded worker pool and collects
// the results.
package jobsrunner

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/errgroup"

	"github.com/nurv/edsl/agent"
	"github.com/nurv/edsl/cache"
	"github.com/nurv/edsl/interview"
	"github.com/nurv/edsl/llm"
	"github.com/nurv/edsl/ratelimit"
	"github.com/nurv/edsl/scenario"
	"github.com/nurv/edsl/survey"
)

// WorkItem is one (agent, scenario, model) combination, before
// iteration cloning.
type WorkItem struct {
	Agent    agent.Agent
	Scenario scenario.Scenario
	Adapter  llm.Adapter
}

// RunOptions configures one Run.
type RunOptions struct {
	Survey          *survey.Survey
	WorkItems       []WorkItem
	N               int // iterations per work item, minimum 1
	StopOnException bool
	Parallelism     int // worker pool size; 0 means runtime.GOMAXPROCS(0)
	Timeout         time.Duration
	Parameters      string
	ProgressEvery   time.Duration // 0 disables progress logging
	Logger          *slog.Logger
}

// Results is the aggregate outcome of a Run: one Item per materialized
// interview, plus a TaskHistory of interviews that recorded exceptions.
type Results struct {
	Items       []*interview.Result
	TaskHistory *TaskHistory
	Elapsed     time.Duration
}

type materializedInterview struct {
	index int
	iv    *interview.Interview
}

// materialize expands each WorkItem into N interview clones, one per
// iteration, grounded in JobsRunnerAsyncio.populate_total_interviews:
// every iteration, including the first, gets a fresh interview.Interview
// sharing the same Survey; the Cache is shared by Run passing the same
// reference to every Conduct call.
func materialize(opts RunOptions) []materializedInterview {
	n := opts.N
	if n <= 0 {
		n = 1
	}
	out := make([]materializedInterview, 0, len(opts.WorkItems)*n)
	idx := 0
	for _, item := range opts.WorkItems {
		for iteration := 0; iteration < n; iteration++ {
			iv := interview.New(item.Agent, item.Scenario, item.Adapter, opts.Survey, iteration, interview.Config{
				Parameters: opts.Parameters,
				Timeout:    opts.Timeout,
			})
			out = append(out, materializedInterview{index: idx, iv: iv})
			idx++
		}
	}
	return out
}

// Run conducts every materialized interview concurrently through a
// bounded worker pool, collecting Results. When opts.StopOnException is
// set, the first interview-level error cancels every other in-flight
// interview and Run returns that error; otherwise failures are recorded
// into Results.TaskHistory and Run always succeeds.
func Run(ctx context.Context, c *cache.Cache, buckets *ratelimit.BucketCollection, opts RunOptions) (*Results, error) {
	start := time.Now()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	items := materialize(opts)
	results := make([]*interview.Result, len(items))
	history := &TaskHistory{}

	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}

	pool, err := ants.NewPool(parallelism)
	if err != nil {
		return nil, fmt.Errorf("jobsrunner: creating worker pool: %w", err)
	}
	defer pool.Release()

	var completed, failed int64
	var mu sync.Mutex

	progressCtx, stopProgress := context.WithCancel(ctx)
	defer stopProgress()
	if opts.ProgressEvery > 0 {
		go reportProgress(progressCtx, logger, opts.ProgressEvery, len(items), &mu, &completed, &failed, start)
	}

	if opts.StopOnException {
		// ants' Submit is fire-and-forget and doesn't compose with
		// errgroup's return-an-error model, so this path runs without
		// the pool, bounding concurrency with a semaphore of the same
		// size instead.
		return runStopOnException(ctx, items, results, history, parallelism, &mu, &completed, &failed, c, buckets, start)
	}

	var wg sync.WaitGroup
	for _, item := range items {
		item := item
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			runOne(ctx, c, buckets, item, results, history, &mu, &completed, &failed)
		})
		if submitErr != nil {
			wg.Done()
			logger.Error("jobsrunner: failed to submit interview", "index", item.index, "error", submitErr)
		}
	}
	wg.Wait()

	return &Results{Items: results, TaskHistory: history, Elapsed: time.Since(start)}, nil
}

func runOne(ctx context.Context, c *cache.Cache, buckets *ratelimit.BucketCollection, item materializedInterview, results []*interview.Result, history *TaskHistory, mu *sync.Mutex, completed, failed *int64) {
	result, err := item.iv.Conduct(ctx, c, buckets)

	mu.Lock()
	defer mu.Unlock()
	*completed++
	if err != nil {
		*failed++
		history.record(item.index, []interview.Exception{{QuestionName: "", Kind: "runner_error", Err: err}})
		return
	}
	results[item.index] = result
	if len(result.Exceptions) > 0 {
		*failed++
		history.record(item.index, result.Exceptions)
	}
}

// runStopOnException bounds concurrency with a semaphore and cancels
// every in-flight interview as soon as one fails, mirroring errgroup's
// first-error-cancels-peers semantics without fighting ants' fire-and-
// forget Submit API.
func runStopOnException(ctx context.Context, items []materializedInterview, results []*interview.Result, history *TaskHistory, parallelism int, mu *sync.Mutex, completed, failed *int64, c *cache.Cache, buckets *ratelimit.BucketCollection, start time.Time) (*Results, error) {
	group, groupCtx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, parallelism)

	for _, item := range items {
		item := item
		sem <- struct{}{}
		group.Go(func() error {
			defer func() { <-sem }()

			result, err := item.iv.Conduct(groupCtx, c, buckets)

			mu.Lock()
			*completed++
			mu.Unlock()

			if err != nil {
				mu.Lock()
				*failed++
				history.record(item.index, []interview.Exception{{QuestionName: "", Kind: "runner_error", Err: err}})
				mu.Unlock()
				return err
			}
			results[item.index] = result
			if len(result.Exceptions) > 0 {
				mu.Lock()
				*failed++
				history.record(item.index, result.Exceptions)
				mu.Unlock()
				return fmt.Errorf("jobsrunner: interview %d: %w", item.index, result.Exceptions[0].Err)
			}
			return nil
		})
	}

	err := group.Wait()
	if err != nil {
		return &Results{Items: results, TaskHistory: history, Elapsed: time.Since(start)}, err
	}
	return &Results{Items: results, TaskHistory: history, Elapsed: time.Since(start)}, nil
}

func reportProgress(ctx context.Context, logger *slog.Logger, every time.Duration, total int, mu *sync.Mutex, completed, failed *int64, start time.Time) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mu.Lock()
			c, f := *completed, *failed
			mu.Unlock()
			logger.Info("jobsrunner: progress",
				"completed", c,
				"failed", f,
				"total", total,
				"elapsed", time.Since(start).Round(time.Second).String(),
			)
		}
	}
}
