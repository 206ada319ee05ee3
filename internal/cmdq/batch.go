package cmdq

import (
	"context"
	"errors"
	"fmt"
)

// ErrBatchStep marks a batch that stopped early because a step failed.
var ErrBatchStep = errors.New("cmdq: batch step failed")

// Step is one command of an ordered batch.
type Step struct {
	Command string
	Args    []any
}

// StepResult is the outcome of one executed batch step.
type StepResult struct {
	Command string
	Value   any
	Err     error
}

// BatchResult reports a whole batch. Steps holds only the results obtained
// before the batch stopped, so on failure its length tells which step broke.
type BatchResult struct {
	Success bool
	Steps   []StepResult
}

// RunBatch executes the steps back-to-back under a single slot acquisition
// on the handle's lane. The steps are never decomposed into independent
// queue entries: no other caller's command can interleave between them,
// which is what keeps multi-step scope changes from being corrupted by a
// concurrent panel. If step k fails, steps k+1..n never execute and the
// batch reports success=false with the partial results.
func (q *Queue) RunBatch(ctx context.Context, handle string, steps []Step) (BatchResult, error) {
	if len(steps) == 0 {
		return BatchResult{Success: true}, nil
	}

	done := make(chan BatchResult, 1)
	q.submit(handle, &job{run: func() {
		result := BatchResult{Success: true}
		for _, step := range steps {
			value, err := q.execute(ctx, handle, q.timeout, step.Command, step.Args...)
			result.Steps = append(result.Steps, StepResult{
				Command: step.Command,
				Value:   value,
				Err:     err,
			})
			if err != nil {
				result.Success = false
				break
			}
		}
		done <- result
	}})

	select {
	case result := <-done:
		if !result.Success {
			last := result.Steps[len(result.Steps)-1]
			return result, fmt.Errorf("%w: step %d (%s): %w",
				ErrBatchStep, len(result.Steps), last.Command, last.Err)
		}
		return result, nil
	case <-ctx.Done():
		return BatchResult{}, ctx.Err()
	}
}
