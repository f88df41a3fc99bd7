package train

import (
	"fmt"

	"sddp/solve"
)

// Status is the symbolic outcome of a training run. Custom stopping rules
// may introduce their own values.
type Status string

const (
	StatusIterationLimit Status = "iteration_limit"
	StatusTimeLimit      Status = "time_limit"
	StatusBoundStalling  Status = "bound_stalling"
	StatusInterrupted    Status = "interrupted"

	// statusNotSolved is the pre-loop sentinel. It must never escape
	// Train; the loop panics if it ever would.
	statusNotSolved Status = "not_solved"
)

// ConfigurationError reports an invalid training option, such as a negative
// tolerance or a run with no stopping rule.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "invalid training configuration: " + e.Reason
}

// SolveError reports a subproblem that failed to reach the required
// feasibility status. It aborts the entire run: an invalid subproblem
// invalidates all downstream value-function information, so there is no
// retry.
type SolveError[K comparable] struct {
	Node   K
	Status solve.Status
}

func (e *SolveError[K]) Error() string {
	return fmt.Sprintf("subproblem at node %v terminated with status %q", e.Node, e.Status)
}
