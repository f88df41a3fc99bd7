package train

import "fmt"

// backward walks the scenario path in reverse. At each non-leaf node it
// solves every (child, noise) combination at the recorded outgoing state
// with duals, risk-adjusts the outcomes, and refines the node's Bellman
// function. With refineSimilar set, nodes sharing a superset of the
// children reuse the same solves under reweighted probabilities.
func (t *trainer[K]) backward(pass *forwardPass[K]) error {
	for i := len(pass.path) - 1; i >= 0; i-- {
		node := t.pg.Nodes[pass.path[i].Node]
		if len(node.Children) == 0 {
			continue
		}
		outgoing := pass.states[i]

		var (
			duals      []map[string]float64
			probs      []float64
			objectives []float64
			noises     []any
			childIDs   []K
			noiseProbs []float64
		)
		for _, child := range node.Children {
			childNode, ok := t.pg.Nodes[child.ID]
			if !ok {
				return fmt.Errorf("node %v has an edge to unknown node %v", node.Index, child.ID)
			}
			for _, noise := range childNode.Noises {
				result, err := t.solveNode(childNode, outgoing, noise.Term, true)
				if err != nil {
					return err
				}
				duals = append(duals, result.Duals)
				probs = append(probs, child.Probability*noise.Probability)
				objectives = append(objectives, result.Objective)
				noises = append(noises, noise.Term)
				childIDs = append(childIDs, child.ID)
				noiseProbs = append(noiseProbs, noise.Probability)
			}
		}

		_, err := node.Bellman.Refine(node.Subproblem, t.pg.Sense, t.measureFor(node.Index),
			outgoing, duals, noises, probs, objectives)
		if err != nil {
			return fmt.Errorf("refining node %v: %w", node.Index, err)
		}

		if !t.refineSimilar {
			continue
		}
		for _, otherID := range t.similar[node.Index] {
			other := t.pg.Nodes[otherID]
			reweighted := make([]float64, len(probs))
			for k := range probs {
				reweighted[k] = t.phi[otherID][childIDs[k]] * noiseProbs[k]
			}
			_, err := other.Bellman.Refine(other.Subproblem, t.pg.Sense, t.measureFor(otherID),
				outgoing, duals, noises, reweighted, objectives)
			if err != nil {
				return fmt.Errorf("refining similar node %v: %w", otherID, err)
			}
		}
	}
	return nil
}
