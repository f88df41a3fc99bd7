package policy

import "sddp/solve"

// Clone returns an independent copy of the policy graph for use by a
// concurrent worker. Subproblems are shared mutable resources, so cloning
// succeeds only when every node's subproblem implements solve.Cloneable;
// otherwise ok is false. Bellman functions and belief records are shared:
// clones are meant for policy evaluation, which never refines.
func (pg *PolicyGraph[K]) Clone() (*PolicyGraph[K], bool) {
	clone := &PolicyGraph[K]{
		Sense:           pg.Sense,
		Root:            pg.Root,
		RootChildren:    pg.RootChildren,
		InitialState:    cloneState(pg.InitialState),
		Nodes:           make(map[K]*Node[K], len(pg.Nodes)),
		BeliefPartition: pg.BeliefPartition,
		order:           pg.order,
	}
	for id, node := range pg.Nodes {
		cloneable, ok := node.Subproblem.(solve.Cloneable)
		if !ok {
			return nil, false
		}
		clone.Nodes[id] = &Node[K]{
			Index:      node.Index,
			Children:   node.Children,
			Noises:     node.Noises,
			Subproblem: cloneable.Clone(),
			Bellman:    node.Bellman,
			Belief:     node.Belief,
		}
	}
	return clone, true
}
