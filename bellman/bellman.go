// Package bellman manages the value-to-go approximation of each policy
// graph node: a pool of supporting hyperplanes refined after every backward
// pass, with Level-One dominance bookkeeping over the sampled state points.
package bellman

import (
	"fmt"
	"math"

	"sddp/risk"
	"sddp/solve"
)

// Function is the capability set a value-to-go approximation must provide.
// Implementations are stateful and owned by exactly one node. The value-to-go
// term itself lives inside the subproblem (its objective reports with and
// without the term), so no separate accessor is needed here.
type Function interface {
	// Initialize allocates the value-to-go in the subproblem: bounded for
	// a node with children, fixed to zero for a terminal node.
	Initialize(sp solve.Subproblem, sense solve.Sense, hasChildren bool) error

	// Refine risk-adjusts the child outcomes and adds one cut at the
	// given outgoing state. duals, noises, probabilities and objectives
	// run parallel over the (child, noise) combinations solved in the
	// backward pass. It returns the cut appended to the pool.
	Refine(sp solve.Subproblem, sense solve.Sense, measure risk.Measure,
		outgoing map[string]float64, duals []map[string]float64,
		noises []any, probabilities, objectives []float64) (*Cut, error)
}

// AverageCut is the standard single-cut Bellman function: each refinement
// collapses the risk-adjusted child outcomes into one average hyperplane.
type AverageCut struct {
	lower     float64
	upper     float64
	tolerance float64
	useTol    bool
	oracle    *Oracle
}

// AverageCutOption configures an AverageCut.
type AverageCutOption func(*AverageCut) error

// WithImprovementTolerance skips installing cuts whose height at the
// refinement point is within tolerance of the current approximation. Skipped
// cuts still enter the pool and the dominance oracle. A negative tolerance
// is a configuration error.
func WithImprovementTolerance(tolerance float64) AverageCutOption {
	return func(f *AverageCut) error {
		if tolerance < 0 || math.IsNaN(tolerance) {
			return fmt.Errorf("cut improvement tolerance must be non-negative, got %v", tolerance)
		}
		f.tolerance = tolerance
		f.useTol = true
		return nil
	}
}

// NewAverageCut returns an AverageCut whose value-to-go variable is bounded
// by [lower, upper] at nodes with children.
func NewAverageCut(lower, upper float64, options ...AverageCutOption) (*AverageCut, error) {
	if lower > upper {
		return nil, fmt.Errorf("value-to-go bounds are inverted: [%v, %v]", lower, upper)
	}
	f := &AverageCut{lower: lower, upper: upper}
	for _, option := range options {
		if err := option(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Oracle exposes the dominance oracle for callers that prune cuts.
func (f *AverageCut) Oracle() *Oracle {
	return f.oracle
}

func (f *AverageCut) Initialize(sp solve.Subproblem, sense solve.Sense, hasChildren bool) error {
	f.oracle = NewOracle(sense)
	if hasChildren {
		sp.SetCostToGoBounds(f.lower, f.upper)
	} else {
		sp.FixCostToGo(0)
	}
	return nil
}

func (f *AverageCut) Refine(sp solve.Subproblem, sense solve.Sense, measure risk.Measure,
	outgoing map[string]float64, duals []map[string]float64,
	noises []any, probabilities, objectives []float64) (*Cut, error) {
	if len(duals) != len(probabilities) || len(probabilities) != len(objectives) {
		return nil, fmt.Errorf("mismatched refinement data: %d duals, %d probabilities, %d objectives",
			len(duals), len(probabilities), len(objectives))
	}
	if len(objectives) == 0 {
		return nil, fmt.Errorf("cannot refine from zero outcomes")
	}

	adjusted := make([]float64, len(probabilities))
	err := measure.Adjust(adjusted, probabilities, noises, objectives, sense == solve.Minimize)
	if err != nil {
		return nil, fmt.Errorf("risk adjustment failed: %w", err)
	}

	coefficients := make(map[string]float64, len(outgoing))
	height := 0.0
	for k, p := range adjusted {
		height += p * objectives[k]
		for name, dual := range duals[k] {
			coefficients[name] += p * dual
		}
	}
	intercept := height
	for name, coefficient := range coefficients {
		intercept -= coefficient * outgoing[name]
	}

	cut := &Cut{Intercept: intercept, Coefficients: coefficients}
	if f.shouldInstall(height, outgoing) {
		handle, err := sp.AddCut(intercept, coefficients)
		if err != nil {
			return nil, fmt.Errorf("installing cut: %w", err)
		}
		cut.Constraint = handle
	}
	f.oracle.AddCut(cut, outgoing)
	return cut, nil
}

// shouldInstall applies the improvement-tolerance check against the height
// of the installed pool at the refinement point. The new cut is installed
// whenever it moves the approximation by more than the tolerance.
func (f *AverageCut) shouldInstall(height float64, outgoing map[string]float64) bool {
	if !f.useTol {
		return true
	}
	current := math.Inf(-1)
	if f.oracle.sense == solve.Maximize {
		current = math.Inf(1)
	}
	installed := false
	for _, cut := range f.oracle.Cuts() {
		if cut.Constraint == nil {
			continue
		}
		installed = true
		h := cut.Height(outgoing)
		if f.oracle.dominates(h, current) {
			current = h
		}
	}
	if !installed {
		return true
	}
	return math.Abs(height-current) > f.tolerance
}
