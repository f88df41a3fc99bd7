package train

import (
	"fmt"
	"math"

	"sddp/policy"
	"sddp/sample"
	"sddp/solve"
)

// forwardPass records one scenario walk: the sampled path, the outgoing
// state after each step, and the exact sum of the per-step stage
// objectives.
type forwardPass[K comparable] struct {
	path       []sample.Step[K]
	cycled     bool
	states     []map[string]float64
	cumulative float64
}

func (t *trainer[K]) forward() (*forwardPass[K], error) {
	path, cycled, err := t.scheme.Sample(t.pg)
	if err != nil {
		return nil, fmt.Errorf("sampling scenario path: %w", err)
	}
	pass := &forwardPass[K]{
		path:   path,
		cycled: cycled,
		states: make([]map[string]float64, 0, len(path)),
	}

	incoming := policy.CloneState(t.pg.InitialState)
	beliefState := t.initialBelief()
	for _, step := range path {
		node, ok := t.pg.Nodes[step.Node]
		if !ok {
			return nil, fmt.Errorf("scenario path visits unknown node %v", step.Node)
		}
		if len(t.starting[step.Node]) > 0 {
			incoming = t.resampleStartingState(step.Node, incoming)
		}
		if t.updater != nil && node.Belief != nil {
			beliefState, err = t.updater.Update(beliefState, node.Belief.Partition, step.Noise)
			if err != nil {
				return nil, fmt.Errorf("updating belief at node %v: %w", step.Node, err)
			}
			node.Belief.Belief = beliefState
		}

		result, err := t.solveNode(node, incoming, step.Noise, false)
		if err != nil {
			return nil, err
		}
		pass.cumulative += result.StageObjective
		outgoing := policy.CloneState(result.Outgoing)
		pass.states = append(pass.states, outgoing)
		incoming = outgoing
	}

	// A cycle cutoff leaves the final outgoing state without a successor
	// visit, so cache it now for future re-entries.
	if cycled && len(pass.states) > 0 {
		last := path[len(path)-1].Node
		final := pass.states[len(pass.states)-1]
		if distanceToCache(t.starting[last], final) > t.cycleDelta {
			t.starting[last] = append(t.starting[last], policy.CloneState(final))
		}
	}
	return pass, nil
}

// resampleStartingState implements the cycle re-entry approximation: cache
// the incoming state if it is farther than the discretization delta from
// every cached state, then continue from a uniformly drawn cached state,
// which is removed from the cache. Successive visits to a recurring node
// thereby revisit explored value-function regions instead of drifting.
func (t *trainer[K]) resampleStartingState(id K, incoming map[string]float64) map[string]float64 {
	cache := t.starting[id]
	if distanceToCache(cache, incoming) > t.cycleDelta {
		cache = append(cache, policy.CloneState(incoming))
	}
	k := t.rng.Intn(len(cache))
	chosen := cache[k]
	cache[k] = cache[len(cache)-1]
	t.starting[id] = cache[:len(cache)-1]
	return chosen
}

// initialBelief puts all mass on the root: the first update then folds in
// the root transition probabilities through phi.
func (t *trainer[K]) initialBelief() map[K]float64 {
	if t.updater == nil {
		return nil
	}
	return map[K]float64{t.pg.Root: 1}
}

func (t *trainer[K]) solveNode(node *policy.Node[K], state map[string]float64, noise any, requireDuals bool) (solve.Result, error) {
	sp := node.Subproblem
	sp.FixIncoming(state)
	sp.Parameterize(noise)
	result, err := sp.Solve(requireDuals)
	if err != nil {
		return result, fmt.Errorf("solving node %v: %w", node.Index, err)
	}
	if result.Status != solve.StatusOptimal {
		return result, &SolveError[K]{Node: node.Index, Status: result.Status}
	}
	return result, nil
}

// distanceToCache is the minimum weighted distance from x to any cached
// state, or +Inf for an empty cache.
func distanceToCache(cache []map[string]float64, x map[string]float64) float64 {
	best := math.Inf(1)
	for _, y := range cache {
		if d := stateDistance(x, y); d < best {
			best = d
		}
	}
	return best
}

// stateDistance is max over state dimensions of |x - y| / (1 + |y|).
func stateDistance(x, y map[string]float64) float64 {
	d := 0.0
	for name, yv := range y {
		if v := math.Abs(x[name]-yv) / (1 + math.Abs(yv)); v > d {
			d = v
		}
	}
	return d
}
