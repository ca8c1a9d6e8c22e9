package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/desertthunder/tunedeck/internal/formatter"
	"github.com/desertthunder/tunedeck/internal/models"
	"github.com/desertthunder/tunedeck/internal/shared"
	"golang.org/x/time/rate"
)

const (
	defaultWorkers   = 3
	maxWorkers       = 10
	defaultRateLimit = 2.0
)

// BulkOpts contains configuration for bulk task runs.
type BulkOpts struct {
	NumWorkers   int           // Concurrent workers (default: 3, max: 10)
	RateLimit    float64       // Triggers per second (default: 2)
	Wait         bool          // Follow every task to a terminal status
	Timeout      time.Duration // Per-task wait limit (0 = none)
	ManifestPath string        // Write a JSON summary here when set
}

// Bulk triggers op for every playlist in ids using a rate limited worker pool.
//
// Individual failures are recorded in the result. The returned error is
// non-nil only when the run was cancelled or the manifest could not be written.
func (e *Engine) Bulk(ctx context.Context, prog chan<- ProgressUpdate, ids []string, op models.Operation, opts BulkOpts) (*models.BulkResult, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one playlist id", shared.ErrMissingArgument)
	}

	if opts.NumWorkers <= 0 {
		opts.NumWorkers = defaultWorkers
	}
	if opts.NumWorkers > maxWorkers {
		opts.NumWorkers = maxWorkers
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = defaultRateLimit
	}

	result := &models.BulkResult{
		Operation: op,
		Total:     len(ids),
		StartedAt: time.Now().UTC(),
		Results:   make([]models.TaskOutcome, 0, len(ids)),
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)

	jobs := make(chan string, len(ids))
	results := make(chan models.TaskOutcome, len(ids))

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go e.worker(ctx, &wg, jobs, results, op, RunOpts{Wait: opts.Wait, Timeout: opts.Timeout})
	}

	go func() {
		defer close(jobs)
		e.sendProgress(prog, bulkStartUpdate(len(ids), op))
		for _, id := range ids {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			jobs <- id
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		result.Add(res)

		if res.Success {
			e.sendProgress(prog, bulkCompletedUpdate(completed, len(ids), res))
		} else {
			e.sendProgress(prog, bulkFailedUpdate(completed, len(ids), res))
		}
	}
	result.FinishedAt = time.Now().UTC()

	e.logger.Info("bulk run finished",
		"operation", op, "total", result.Total, "succeeded", result.Succeeded, "failed", result.Failed)

	if err := ctx.Err(); err != nil {
		return result, err
	}

	if opts.ManifestPath != "" {
		if err := formatter.WriteBulkManifest(result, opts.ManifestPath); err != nil {
			return result, fmt.Errorf("bulk run completed but failed to write manifest: %w", err)
		}
	}
	return result, nil
}

// worker runs tasks from the jobs channel.
func (e *Engine) worker(
	ctx context.Context,
	wg *sync.WaitGroup,
	jobs <-chan string,
	results chan<- models.TaskOutcome,
	op models.Operation,
	opts RunOpts,
) {
	defer wg.Done()

	for id := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		outcome, _ := e.Run(ctx, nil, id, op, opts)
		results <- *outcome
	}
}
