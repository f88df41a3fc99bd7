// Package piecewise is a reference implementation of the subproblem
// contract for stage problems with a single state variable and a
// piecewise-linear convex stage cost. It solves by enumerating the
// breakpoints of the decision's cost profile, which is exact for
// piecewise-linear problems, and reports duals as right-derivatives of the
// stage value with respect to the incoming state. It exists so examples and
// tests can run the engine end to end; production models plug in a real
// convex solver behind solve.Subproblem instead.
package piecewise

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"sddp/solve"
)

// ErrInfeasible marks a stage function that found no feasible decision. The
// solve reports an infeasible status instead of an execution error.
var ErrInfeasible = errors.New("infeasible stage problem")

// CostToGo evaluates the current value-to-go approximation.
type CostToGo interface {
	// Value is the approximation height at an outgoing state.
	Value(state float64) float64
	// Candidates returns the breakpoints of the approximation inside
	// [lo, hi], endpoints included, so stage functions can enumerate
	// candidate outgoing states exactly.
	Candidates(lo, hi float64) []float64
}

// StageResult is one optimal stage decision.
type StageResult struct {
	// StageObjective excludes the cost-to-go term.
	StageObjective float64
	Outgoing       float64
}

// StageFunc solves one stage to optimality given the incoming state value,
// the realized noise, and the cost-to-go approximation.
type StageFunc func(incoming float64, noise any, ctg CostToGo) (StageResult, error)

type cutConstraint struct {
	intercept   float64
	coefficient float64
	active      bool
}

type cutHandle struct {
	cut *cutConstraint
}

func (h *cutHandle) Remove() error {
	h.cut.active = false
	return nil
}

// Subproblem implements solve.Subproblem over a single named state.
type Subproblem struct {
	stateName  string
	stateLower float64
	stateUpper float64
	sense      solve.Sense
	stage      StageFunc

	cuts     []*cutConstraint
	ctgLower float64
	ctgUpper float64
	ctgFixed *float64

	beliefWeights map[string]float64

	incoming float64
	noise    any
}

// New returns a subproblem whose state is clamped to
// [stateLower, stateUpper].
func New(stateName string, stateLower, stateUpper float64, sense solve.Sense, stage StageFunc) *Subproblem {
	return &Subproblem{
		stateName:  stateName,
		stateLower: stateLower,
		stateUpper: stateUpper,
		sense:      sense,
		stage:      stage,
	}
}

func (s *Subproblem) StateNames() []string {
	return []string{s.stateName}
}

func (s *Subproblem) FixIncoming(state map[string]float64) {
	s.incoming = state[s.stateName]
}

func (s *Subproblem) Parameterize(noise any) {
	s.noise = noise
}

func (s *Subproblem) SetCostToGoBounds(lower, upper float64) {
	s.ctgLower = lower
	s.ctgUpper = upper
	s.ctgFixed = nil
}

func (s *Subproblem) FixCostToGo(value float64) {
	s.ctgFixed = &value
}

func (s *Subproblem) AddCut(intercept float64, coefficients map[string]float64) (solve.CutHandle, error) {
	coefficient, ok := coefficients[s.stateName]
	if !ok && len(coefficients) > 0 {
		return nil, fmt.Errorf("cut has no coefficient for state %q", s.stateName)
	}
	cut := &cutConstraint{intercept: intercept, coefficient: coefficient, active: true}
	s.cuts = append(s.cuts, cut)
	return &cutHandle{cut: cut}, nil
}

// AddBeliefWeight satisfies solve.BeliefSubproblem. The reference
// implementation only records the allocation; belief weights do not enter
// the closed-form stage solve.
func (s *Subproblem) AddBeliefWeight(tag string, upper float64) error {
	if s.beliefWeights == nil {
		s.beliefWeights = make(map[string]float64)
	}
	s.beliefWeights[tag] = upper
	return nil
}

// Clone satisfies solve.Cloneable. The clone owns its own cut pool so the
// original and the clone can be solved concurrently.
func (s *Subproblem) Clone() solve.Subproblem {
	clone := *s
	clone.cuts = make([]*cutConstraint, len(s.cuts))
	for i, cut := range s.cuts {
		c := *cut
		clone.cuts[i] = &c
	}
	if s.beliefWeights != nil {
		clone.beliefWeights = make(map[string]float64, len(s.beliefWeights))
		for tag, upper := range s.beliefWeights {
			clone.beliefWeights[tag] = upper
		}
	}
	if s.ctgFixed != nil {
		v := *s.ctgFixed
		clone.ctgFixed = &v
	}
	return &clone
}

func (s *Subproblem) Solve(requireDuals bool) (solve.Result, error) {
	total, result, err := s.solveAt(s.incoming)
	if errors.Is(err, ErrInfeasible) {
		return solve.Result{Status: solve.StatusInfeasible}, nil
	}
	if err != nil {
		return solve.Result{Status: solve.StatusUnknown}, err
	}

	outgoing := clamp(result.Outgoing, s.stateLower, s.stateUpper)
	out := solve.Result{
		Status:         solve.StatusOptimal,
		StageObjective: result.StageObjective,
		Objective:      total,
		Outgoing:       map[string]float64{s.stateName: outgoing},
	}
	if requireDuals {
		// The stage value is piecewise linear in the incoming state, so
		// a one-sided difference recovers a valid subgradient. The
		// difference is taken on the full objective, making the dual
		// sense-independent by construction.
		delta := 1e-7 * (1 + math.Abs(s.incoming))
		shifted, _, err := s.solveAt(s.incoming + delta)
		if err != nil {
			return solve.Result{Status: solve.StatusDualInfeasible}, nil
		}
		out.Duals = map[string]float64{s.stateName: (shifted - total) / delta}
	}
	return out, nil
}

func (s *Subproblem) solveAt(incoming float64) (float64, StageResult, error) {
	result, err := s.stage(incoming, s.noise, (*costToGo)(s))
	if err != nil {
		return 0, StageResult{}, err
	}
	total := result.StageObjective + (*costToGo)(s).Value(result.Outgoing)
	return total, result, nil
}

// costToGo adapts the subproblem's cut pool to the CostToGo interface.
type costToGo Subproblem

func (c *costToGo) Value(state float64) float64 {
	if c.ctgFixed != nil {
		return *c.ctgFixed
	}
	if c.sense == solve.Minimize {
		// theta is pushed down onto the lower envelope of its bounds and
		// cuts: the largest of the lower bound and every cut height.
		value := c.ctgLower
		for _, cut := range c.cuts {
			if !cut.active {
				continue
			}
			if h := cut.intercept + cut.coefficient*state; h > value {
				value = h
			}
		}
		return math.Min(value, c.ctgUpper)
	}
	value := c.ctgUpper
	for _, cut := range c.cuts {
		if !cut.active {
			continue
		}
		if h := cut.intercept + cut.coefficient*state; h < value {
			value = h
		}
	}
	return math.Max(value, c.ctgLower)
}

func (c *costToGo) Candidates(lo, hi float64) []float64 {
	candidates := []float64{lo, hi}
	if c.ctgFixed == nil {
		active := make([]*cutConstraint, 0, len(c.cuts))
		for _, cut := range c.cuts {
			if cut.active {
				active = append(active, cut)
			}
		}
		bound := c.ctgLower
		if c.sense == solve.Maximize {
			bound = c.ctgUpper
		}
		for i, a := range active {
			// Kink against the flat theta bound.
			if a.coefficient != 0 {
				if x := (bound - a.intercept) / a.coefficient; lo < x && x < hi {
					candidates = append(candidates, x)
				}
			}
			// Kinks against the other cuts.
			for _, b := range active[i+1:] {
				if a.coefficient == b.coefficient {
					continue
				}
				x := (b.intercept - a.intercept) / (a.coefficient - b.coefficient)
				if lo < x && x < hi {
					candidates = append(candidates, x)
				}
			}
		}
	}
	sort.Float64s(candidates)
	return candidates
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
