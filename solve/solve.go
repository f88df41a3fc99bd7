// Package solve defines the contract between the training engine and the
// optimization solver backing each node's subproblem. The engine never
// inspects a subproblem beyond this interface; any convex solver that can
// fix incoming states, apply a noise realization, report duals on the fixed
// state constraints, and host cut constraints can serve.
package solve

// Sense is the optimization direction of the whole policy graph.
type Sense int

const (
	Minimize Sense = iota
	Maximize
)

func (s Sense) String() string {
	switch s {
	case Minimize:
		return "minimize"
	case Maximize:
		return "maximize"
	default:
		return "unknown sense"
	}
}

// Status reports how a solve terminated.
type Status int

const (
	StatusOptimal Status = iota
	StatusInfeasible
	StatusDualInfeasible
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusDualInfeasible:
		return "dual infeasible"
	default:
		return "unknown"
	}
}

// Result is one solve outcome. StageObjective excludes the cost-to-go term;
// Objective includes it. Outgoing holds the post-decision state values,
// clamped to their bounds if the solver reported a numerically infeasible
// overshoot. Duals holds the duals on the fixed incoming-state constraints,
// populated only when the solve was asked for them; the solver must flip
// their sign under maximization so duals are sense-independent.
type Result struct {
	Status         Status
	StageObjective float64
	Objective      float64
	Outgoing       map[string]float64
	Duals          map[string]float64
}

// CutHandle identifies a cut constraint installed in a subproblem so that
// callers running their own pruning can remove it later.
type CutHandle interface {
	Remove() error
}

// Subproblem is one node's parametric optimization problem.
type Subproblem interface {
	// StateNames lists the declared state variables.
	StateNames() []string

	// FixIncoming pins the incoming state variables to the given point.
	FixIncoming(state map[string]float64)

	// Parameterize applies one noise realization to the problem data.
	Parameterize(noise any)

	// Solve optimizes the subproblem in place. Duals are computed only
	// when requireDuals is set; forward passes skip them.
	Solve(requireDuals bool) (Result, error)

	// AddCut installs the supporting hyperplane
	// theta >= intercept + coefficients . x (minimization) or
	// theta <= ... (maximization) as an active constraint.
	AddCut(intercept float64, coefficients map[string]float64) (CutHandle, error)

	// SetCostToGoBounds bounds the value-to-go variable of a node with
	// children.
	SetCostToGoBounds(lower, upper float64)

	// FixCostToGo pins the value-to-go variable, used to zero it at
	// terminal nodes.
	FixCostToGo(value float64)
}

// BeliefSubproblem is implemented by subproblems that can host the
// auxiliary non-negative belief-weight variables required when the policy
// graph carries a belief partition.
type BeliefSubproblem interface {
	Subproblem

	// AddBeliefWeight allocates one non-negative variable bounded above
	// by upper for the partition member identified by tag.
	AddBeliefWeight(tag string, upper float64) error
}

// Cloneable is implemented by subproblems that can produce an independent
// copy, including installed cuts. Clones are the unit of parallelism: a
// subproblem is a shared mutable resource, so concurrent workers each need
// their own instance.
type Cloneable interface {
	Clone() Subproblem
}
