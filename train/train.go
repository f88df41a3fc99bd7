// Package train orchestrates policy training: sample a scenario path, walk
// it forward under the current cuts, walk it backward adding one cut per
// visited non-leaf node, recompute the bound, and consult the stopping
// rules. It repeats until a rule fires, the context is cancelled, or a
// subproblem fails.
package train

import (
	"context"
	"time"

	"sddp/policy"
)

// Result is the outcome of a training run.
type Result struct {
	Status Status
	Log    []Iteration
}

// Train runs the training loop until a stopping rule fires or ctx is
// cancelled. Cancellation is cooperative and checked at iteration
// boundaries: the run ends with StatusInterrupted and the log accumulated
// so far. Any subproblem failure aborts immediately with a SolveError; no
// partial result is returned in that case.
func Train[K comparable](ctx context.Context, pg *policy.PolicyGraph[K], options ...Option[K]) (*Result, error) {
	t, err := newTrainer(pg, options...)
	if err != nil {
		return nil, err
	}
	t.logger.Info().
		Stringer("sense", pg.Sense).
		Int("nodes", len(pg.Nodes)).
		Msg("training started")

	start := time.Now()
	status := statusNotSolved
	var log []Iteration

loop:
	for {
		if ctx.Err() != nil {
			status = StatusInterrupted
			break
		}
		pass, err := t.forward()
		if err != nil {
			return nil, err
		}
		if err := t.backward(pass); err != nil {
			return nil, err
		}
		bound, err := t.bound()
		if err != nil {
			return nil, err
		}
		entry := Iteration{
			Number:          len(log) + 1,
			Bound:           bound,
			SimulationValue: pass.cumulative,
			Elapsed:         time.Since(start),
		}
		log = append(log, entry)
		t.logger.Debug().
			Int("iteration", entry.Number).
			Float64("bound", entry.Bound).
			Float64("simulation", entry.SimulationValue).
			Dur("elapsed", entry.Elapsed).
			Msg("iteration complete")

		for _, rule := range t.rules {
			if s, stop := rule.ShouldStop(log); stop {
				status = s
				break loop
			}
		}
	}
	if status == statusNotSolved {
		panic("training loop exited without a terminal status")
	}
	t.logger.Info().
		Str("status", string(status)).
		Int("iterations", len(log)).
		Msg("training finished")
	return &Result{Status: status, Log: log}, nil
}
