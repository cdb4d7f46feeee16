// Package runner launches crawl jobs as fire-and-forget background tasks.
package runner

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"smartcrawl/internal/metrics"
)

// Runner owns the background goroutines for in-flight jobs. Submission
// returns immediately; tasks run on a base context detached from the HTTP
// request so a crawl outlives its submission call. There is no per-job
// cancellation: once launched, a job runs to its own per-step timeouts.
type Runner struct {
	baseCtx context.Context
	logger  *zap.Logger
	sem     chan struct{}
	wg      sync.WaitGroup
}

// New builds a Runner. maxParallel <= 0 means unbounded.
func New(baseCtx context.Context, maxParallel int, logger *zap.Logger) *Runner {
	var sem chan struct{}
	if maxParallel > 0 {
		sem = make(chan struct{}, maxParallel)
	}
	return &Runner{
		baseCtx: baseCtx,
		logger:  logger,
		sem:     sem,
	}
}

// Launch starts task on its own goroutine and returns immediately.
func (r *Runner) Launch(jobID string, task func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if r.sem != nil {
			r.sem <- struct{}{}
			defer func() { <-r.sem }()
		}
		metrics.IncActiveJobs()
		defer metrics.DecActiveJobs()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("job task panicked",
					zap.String("job_id", jobID),
					zap.Any("panic", rec),
				)
			}
		}()
		task(r.baseCtx)
	}()
}

// Drain waits for all in-flight jobs to finish or ctx to expire.
func (r *Runner) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain jobs: %w", ctx.Err())
	}
}
