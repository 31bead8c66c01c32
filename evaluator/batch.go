package evaluator

import (
	"context"
	"sync"
	"time"

	"github.com/klejdi94/assay/core"
)

const defaultBatchWorkers = 4

// ItemResult is the outcome of one batch item. Index matches the position in
// the request slice.
type ItemResult struct {
	Index  int
	Result *core.EvaluationResult
	Err    error
}

// BatchReport summarizes a batch run. Results is index-aligned with the
// request slice, so callers can map outcomes back to their inputs.
type BatchReport struct {
	Total     int
	Succeeded int
	Failed    int
	Results   []ItemResult
	Duration  time.Duration
}

// EvaluateBatch evaluates every request with bounded concurrency. One item's
// failure never aborts the batch; it surfaces as that item's Err.
func (e *Evaluator) EvaluateBatch(ctx context.Context, reqs []core.EvaluationRequest) *BatchReport {
	start := time.Now()
	report := &BatchReport{
		Total:   len(reqs),
		Results: make([]ItemResult, len(reqs)),
	}
	if len(reqs) == 0 {
		report.Duration = time.Since(start)
		return report
	}

	workers := e.workers
	if workers <= 0 {
		workers = defaultBatchWorkers
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i := range reqs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			res, err := e.Evaluate(ctx, reqs[i])
			report.Results[i] = ItemResult{Index: i, Result: res, Err: err}
		}(i)
	}
	wg.Wait()

	for _, item := range report.Results {
		if item.Err != nil {
			report.Failed++
		} else {
			report.Succeeded++
		}
	}
	report.Duration = time.Since(start)
	return report
}
