// Package risk implements probability-reweighting strategies applied to
// child-node outcomes before a cut is generated. A measure rewrites the
// nominal probabilities of the sampled outcomes into a risk-adjusted
// distribution; the adjusted vector is always non-negative and preserves the
// nominal total mass.
package risk

import (
	"fmt"
	"math"
	"sort"
)

// Measure rewrites probabilities into out, which callers allocate with the
// same length as probabilities. noises carries the realizations matching
// each outcome for measures that condition on them; the bundled measures
// only inspect objectives.
type Measure interface {
	Adjust(out, probabilities []float64, noises []any, objectives []float64, minimizing bool) error
}

// Expectation is the risk-neutral measure: the identity copy.
type Expectation struct{}

func (Expectation) Adjust(out, probabilities []float64, _ []any, objectives []float64, _ bool) error {
	if err := checkLengths(out, probabilities, objectives); err != nil {
		return err
	}
	copy(out, probabilities)
	return nil
}

// WorstCase places the entire mass on the worst reachable outcome: the
// largest objective when minimizing, the smallest when maximizing. Outcomes
// with zero nominal probability are unreachable and never selected.
type WorstCase struct{}

func (WorstCase) Adjust(out, probabilities []float64, _ []any, objectives []float64, minimizing bool) error {
	if err := checkLengths(out, probabilities, objectives); err != nil {
		return err
	}
	worst := -1
	for i, p := range probabilities {
		if p <= 0 {
			continue
		}
		if worst < 0 || isWorse(objectives[i], objectives[worst], minimizing) {
			worst = i
		}
	}
	if worst < 0 {
		return fmt.Errorf("worst case is undefined: no outcome has positive probability")
	}
	total := 0.0
	for i, p := range probabilities {
		out[i] = 0
		total += p
	}
	out[worst] = total
	return nil
}

// AVaR is the average value at risk (equivalently CVaR) of the outcome
// distribution: the expectation over the worst beta fraction of the mass.
// beta = 1 recovers Expectation; beta = 0 recovers WorstCase.
type AVaR struct {
	beta float64
}

// NewAVaR validates the quantile and returns the measure. beta outside
// [0, 1] is a configuration error.
func NewAVaR(beta float64) (*AVaR, error) {
	if beta < 0 || beta > 1 || math.IsNaN(beta) {
		return nil, fmt.Errorf("AVaR quantile must lie in [0, 1], got %v", beta)
	}
	return &AVaR{beta: beta}, nil
}

func (m *AVaR) Adjust(out, probabilities []float64, noises []any, objectives []float64, minimizing bool) error {
	if err := checkLengths(out, probabilities, objectives); err != nil {
		return err
	}
	if m.beta == 0 {
		return WorstCase{}.Adjust(out, probabilities, noises, objectives, minimizing)
	}
	if m.beta == 1 {
		return Expectation{}.Adjust(out, probabilities, noises, objectives, minimizing)
	}
	order := make([]int, len(objectives))
	for i := range order {
		order[i] = i
	}
	// Worst outcomes first.
	sort.SliceStable(order, func(a, b int) bool {
		return isWorse(objectives[order[a]], objectives[order[b]], minimizing)
	})
	total := 0.0
	for _, p := range probabilities {
		total += p
	}
	for i := range out {
		out[i] = 0
	}
	remaining := m.beta * total
	for _, k := range order {
		if remaining <= 0 {
			break
		}
		take := math.Min(probabilities[k], remaining)
		out[k] = take / m.beta
		remaining -= take
	}
	return nil
}

// EAVaR is the convex combination lambda*Expectation + (1-lambda)*AVaR(beta),
// the usual way of trading off mean performance against tail risk.
type EAVaR struct {
	lambda float64
	avar   *AVaR
}

func NewEAVaR(lambda, beta float64) (*EAVaR, error) {
	if lambda < 0 || lambda > 1 || math.IsNaN(lambda) {
		return nil, fmt.Errorf("EAVaR weight must lie in [0, 1], got %v", lambda)
	}
	avar, err := NewAVaR(beta)
	if err != nil {
		return nil, err
	}
	return &EAVaR{lambda: lambda, avar: avar}, nil
}

func (m *EAVaR) Adjust(out, probabilities []float64, noises []any, objectives []float64, minimizing bool) error {
	if err := checkLengths(out, probabilities, objectives); err != nil {
		return err
	}
	tail := make([]float64, len(out))
	if err := m.avar.Adjust(tail, probabilities, noises, objectives, minimizing); err != nil {
		return err
	}
	for i := range out {
		out[i] = m.lambda*probabilities[i] + (1-m.lambda)*tail[i]
	}
	return nil
}

func isWorse(a, b float64, minimizing bool) bool {
	if minimizing {
		return a > b
	}
	return a < b
}

func checkLengths(out, probabilities, objectives []float64) error {
	if len(out) != len(probabilities) || len(probabilities) != len(objectives) {
		return fmt.Errorf("mismatched lengths: out=%d probabilities=%d objectives=%d",
			len(out), len(probabilities), len(objectives))
	}
	return nil
}
