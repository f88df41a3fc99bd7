package graph

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Linear returns a finite-horizon chain: root 0, nodes 1..stages, each edge
// taken with probability 1.
func Linear(stages int) (*Graph[int], error) {
	if stages < 1 {
		return nil, &ValidationError{Reason: fmt.Sprintf("a linear graph needs at least 1 stage, got %d", stages)}
	}
	g := New(0)
	for t := 1; t <= stages; t++ {
		if err := g.AddNode(t); err != nil {
			return nil, err
		}
		if err := g.AddEdge(t-1, t, 1.0); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// UnicyclicLinear returns a chain of the given length whose last node loops
// back to the first with the given probability, producing an
// infinite-horizon graph with discount factor backProbability.
func UnicyclicLinear(stages int, backProbability float64) (*Graph[int], error) {
	if backProbability <= 0 || backProbability >= 1 {
		return nil, &ValidationError{
			Reason: fmt.Sprintf("cycle probability must lie strictly inside (0, 1), got %v", backProbability),
		}
	}
	g, err := Linear(stages)
	if err != nil {
		return nil, err
	}
	if err := g.AddEdge(stages, 1, backProbability); err != nil {
		return nil, err
	}
	return g, nil
}

// Markov identifies a node of a Markovian graph by its stage and its Markov
// state within that stage. Stages and states are 1-based; the root is
// Markov{0, 1}.
type Markov struct {
	Stage int
	State int
}

// Markovian builds a policy graph from a sequence of transition matrices,
// one per stage. matrices[0] must be a single row (the distribution of the
// first stage's Markov states); each subsequent matrix must have one row per
// Markov state of the previous stage. Rows must be sub-stochastic with
// non-negative entries.
func Markovian(matrices []*mat.Dense) (*Graph[Markov], error) {
	if len(matrices) == 0 {
		return nil, &ValidationError{Reason: "a Markovian graph needs at least one transition matrix"}
	}
	if r, _ := matrices[0].Dims(); r != 1 {
		return nil, &ValidationError{
			Reason: fmt.Sprintf("the first transition matrix must have exactly 1 row, got %d", r),
		}
	}
	g := New(Markov{Stage: 0, State: 1})
	for t, m := range matrices {
		rows, cols := m.Dims()
		if t > 0 {
			_, prev := matrices[t-1].Dims()
			if rows != prev {
				return nil, &ValidationError{
					Reason: fmt.Sprintf("stage %d matrix has %d rows but stage %d has %d Markov states",
						t+1, rows, t, prev),
				}
			}
		}
		for j := 1; j <= cols; j++ {
			if err := g.AddNode(Markov{Stage: t + 1, State: j}); err != nil {
				return nil, err
			}
		}
		for i := 0; i < rows; i++ {
			total := 0.0
			for j := 0; j < cols; j++ {
				p := m.At(i, j)
				if p < 0 {
					return nil, &ValidationError{
						Reason: fmt.Sprintf("stage %d matrix has negative entry %v at (%d, %d)", t+1, p, i, j),
					}
				}
				total += p
				if p == 0 {
					continue
				}
				from := Markov{Stage: t, State: i + 1}
				to := Markov{Stage: t + 1, State: j + 1}
				if err := g.AddEdge(from, to, p); err != nil {
					return nil, err
				}
			}
			if total > 1+probabilityTolerance {
				return nil, &ValidationError{
					Reason: fmt.Sprintf("stage %d matrix row %d sums to %v, expected a value in [0, 1]", t+1, i, total),
				}
			}
		}
	}
	return g, nil
}
