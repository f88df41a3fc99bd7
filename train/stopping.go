package train

import (
	"math"
	"time"
)

// Iteration is one row of the training log.
type Iteration struct {
	Number          int
	Bound           float64
	SimulationValue float64
	Elapsed         time.Duration
}

// StoppingRule decides after each iteration whether training is done, and
// with which status. Rules are evaluated in order; the first positive one
// wins.
type StoppingRule interface {
	ShouldStop(log []Iteration) (Status, bool)
}

type iterationLimit struct {
	limit int
}

// IterationLimit stops after exactly limit iterations.
func IterationLimit(limit int) StoppingRule {
	return &iterationLimit{limit: limit}
}

func (r *iterationLimit) ShouldStop(log []Iteration) (Status, bool) {
	if len(log) >= r.limit {
		return StatusIterationLimit, true
	}
	return statusNotSolved, false
}

type timeLimit struct {
	limit time.Duration
}

// TimeLimit stops once the elapsed training time reaches the limit, checked
// at iteration boundaries.
func TimeLimit(limit time.Duration) StoppingRule {
	return &timeLimit{limit: limit}
}

func (r *timeLimit) ShouldStop(log []Iteration) (Status, bool) {
	if len(log) > 0 && log[len(log)-1].Elapsed >= r.limit {
		return StatusTimeLimit, true
	}
	return statusNotSolved, false
}

type boundStalling struct {
	window    int
	tolerance float64
}

// BoundStalling stops when the bound has moved by less than tolerance over
// each of the last window iterations.
func BoundStalling(window int, tolerance float64) StoppingRule {
	return &boundStalling{window: window, tolerance: tolerance}
}

func (r *boundStalling) ShouldStop(log []Iteration) (Status, bool) {
	if len(log) <= r.window {
		return statusNotSolved, false
	}
	for i := len(log) - r.window; i < len(log); i++ {
		if math.Abs(log[i].Bound-log[i-1].Bound) > r.tolerance {
			return statusNotSolved, false
		}
	}
	return StatusBoundStalling, true
}
