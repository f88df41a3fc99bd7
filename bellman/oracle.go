package bellman

import (
	"sort"
	"strconv"
	"strings"

	"sddp/solve"
)

// Cut is one supporting hyperplane of a Bellman function:
// theta >= Intercept + Coefficients . x under minimization, <= under
// maximization. Constraint is nil when the cut was recorded in the pool but
// never installed in the subproblem.
type Cut struct {
	Intercept         float64
	Coefficients      map[string]float64
	Constraint        solve.CutHandle
	NonDominatedCount int
}

// Height evaluates the hyperplane at a state point.
func (c *Cut) Height(state map[string]float64) float64 {
	h := c.Intercept
	for name, coefficient := range c.Coefficients {
		h += coefficient * state[name]
	}
	return h
}

// SampledState is one distinct outgoing state visited at a node, together
// with the best cut height seen there and the cut achieving it.
type SampledState struct {
	State         map[string]float64
	BestObjective float64
	BestCut       *Cut
}

// Oracle implements Level-One cut dominance bookkeeping: every cut tracks at
// how many sampled states it is the best one. The oracle only maintains the
// counts; pruning cuts whose count reaches zero is left to the caller.
type Oracle struct {
	sense   solve.Sense
	cuts    []*Cut
	states  []*SampledState
	sampled map[string]bool
}

func NewOracle(sense solve.Sense) *Oracle {
	return &Oracle{
		sense:   sense,
		sampled: make(map[string]bool),
	}
}

// Cuts returns the full pool, including cuts that were never installed.
func (o *Oracle) Cuts() []*Cut {
	return o.cuts
}

// States returns the sampled state points seen so far.
func (o *Oracle) States() []*SampledState {
	return o.states
}

// AddCut registers a new cut generated at the given outgoing state. Existing
// sampled states switch to the new cut where it dominates their current
// best; if the state point is new, it is recorded and every existing cut
// competes for it.
func (o *Oracle) AddCut(cut *Cut, state map[string]float64) {
	for _, sampled := range o.states {
		height := cut.Height(sampled.State)
		if o.dominates(height, sampled.BestObjective) {
			sampled.BestCut.NonDominatedCount--
			cut.NonDominatedCount++
			sampled.BestObjective = height
			sampled.BestCut = cut
		}
	}
	o.cuts = append(o.cuts, cut)

	if len(state) == 0 {
		return
	}
	key := stateKey(state)
	if o.sampled[key] {
		return
	}
	o.sampled[key] = true

	sampled := &SampledState{
		State:         state,
		BestObjective: cut.Height(state),
		BestCut:       cut,
	}
	cut.NonDominatedCount++
	for _, other := range o.cuts {
		if other == cut {
			continue
		}
		height := other.Height(state)
		if o.dominates(height, sampled.BestObjective) {
			sampled.BestCut.NonDominatedCount--
			other.NonDominatedCount++
			sampled.BestObjective = height
			sampled.BestCut = other
		}
	}
	o.states = append(o.states, sampled)
}

// dominates reports whether a candidate height is better than the incumbent
// per the objective sense. Cuts bound the value function from below under
// minimization, so the larger height is the tighter one.
func (o *Oracle) dominates(height, incumbent float64) bool {
	if o.sense == solve.Minimize {
		return height > incumbent
	}
	return height < incumbent
}

// stateKey serializes a state point for exact-equality deduplication.
func stateKey(state map[string]float64) string {
	names := make([]string, 0, len(state))
	for name := range state {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(state[name], 'g', -1, 64))
		b.WriteByte(';')
	}
	return b.String()
}
