package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"secure-shred/internal/metrics"
)

// Evaluator destroys one operand
type Evaluator interface {
	Evaluate(ctx context.Context, path string) error
}

// OperandResult is the outcome of one command-line operand
type OperandResult struct {
	Path    string
	Elapsed time.Duration
	Err     error
}

// Runner evaluates operands sequentially or on a bounded worker pool
type Runner struct {
	eval    Evaluator
	workers int
	logger  *zap.Logger
}

// New creates a Runner; workers below 1 means sequential
func New(eval Evaluator, workers int, logger *zap.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Runner{eval: eval, workers: workers, logger: logger.Named("runner")}
}

// Run evaluates every operand and returns one result per operand in input
// order. A failing operand never stops the others. Once ctx is cancelled,
// operands that have not started are reported with the context error.
func (r *Runner) Run(ctx context.Context, operands []string) []OperandResult {
	start := time.Now()
	results := make([]OperandResult, len(operands))

	workers := r.workers
	if workers > len(operands) {
		workers = len(operands)
	}
	r.logger.Debug("run starting", zap.Int("operands", len(operands)), zap.Int("workers", workers))

	if workers <= 1 {
		for i, op := range operands {
			results[i] = r.runOne(ctx, op)
		}
	} else {
		sem := make(chan struct{}, workers)
		var wg sync.WaitGroup
		for i, op := range operands {
			wg.Add(1)
			sem <- struct{}{}
			go func(i int, op string) {
				defer wg.Done()
				defer func() { <-sem }()
				results[i] = r.runOne(ctx, op)
			}(i, op)
		}
		wg.Wait()
	}

	failed := Failed(results)
	metrics.RecordRun(failed)
	r.logger.Info("run complete",
		zap.Int("operands", len(operands)),
		zap.Int("failed", failed),
		zap.Duration("elapsed", time.Since(start)),
	)
	return results
}

func (r *Runner) runOne(ctx context.Context, path string) OperandResult {
	if err := ctx.Err(); err != nil {
		res := OperandResult{Path: path, Err: fmt.Errorf("%s: not started: %w", path, err)}
		metrics.RecordOperand(true)
		return res
	}

	metrics.WorkersActive.Inc()
	defer metrics.WorkersActive.Dec()

	start := time.Now()
	err := r.eval.Evaluate(ctx, path)
	res := OperandResult{Path: path, Elapsed: time.Since(start), Err: err}
	metrics.RecordOperand(err != nil)
	return res
}

// Failed counts results carrying an error
func Failed(results []OperandResult) int {
	n := 0
	for _, res := range results {
		if res.Err != nil {
			n++
		}
	}
	return n
}
