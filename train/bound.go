package train

import (
	"fmt"

	"sddp/solve"
)

// bound computes the deterministic bound on the policy value: a one-step
// expansion from the root under the current cuts, risk-adjusted with the
// root measure. For minimization this is a lower bound.
func (t *trainer[K]) bound() (float64, error) {
	var (
		probs      []float64
		objectives []float64
		noises     []any
	)
	for _, child := range t.pg.RootChildren {
		node, ok := t.pg.Nodes[child.ID]
		if !ok {
			return 0, fmt.Errorf("root has an edge to unknown node %v", child.ID)
		}
		for _, noise := range node.Noises {
			result, err := t.solveNode(node, t.pg.InitialState, noise.Term, false)
			if err != nil {
				return 0, err
			}
			probs = append(probs, child.Probability*noise.Probability)
			objectives = append(objectives, result.Objective)
			noises = append(noises, noise.Term)
		}
	}
	if len(objectives) == 0 {
		return 0, fmt.Errorf("the root has no children to expand")
	}

	adjusted := make([]float64, len(probs))
	err := t.rootRisk.Adjust(adjusted, probs, noises, objectives, t.pg.Sense == solve.Minimize)
	if err != nil {
		return 0, fmt.Errorf("adjusting root probabilities: %w", err)
	}
	b := 0.0
	for k, p := range adjusted {
		b += p * objectives[k]
	}
	return b, nil
}
