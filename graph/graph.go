// Package graph implements the directed weighted graph underlying a policy
// graph: a distinguished root, probability-weighted edges between decision
// nodes, and an optional partition of nodes into ambiguity sets for
// partially observable problems.
package graph

import (
	"fmt"
	"math"
)

// probabilityTolerance absorbs floating-point drift when checking that edge
// probabilities sum to a value in [0, 1].
const probabilityTolerance = 1e-8

// Child is one outgoing edge: the destination node and the probability of
// transitioning to it.
type Child[K comparable] struct {
	ID          K
	Probability float64
}

// Graph is a rooted directed weighted graph keyed by an arbitrary comparable
// node identifier. It is mutable until Validate succeeds; afterwards callers
// must treat it as immutable.
type Graph[K comparable] struct {
	Root  K
	Nodes map[K][]Child[K]

	// BeliefPartition groups observationally indistinguishable nodes.
	// Empty for fully observable graphs.
	BeliefPartition [][]K

	// order preserves node insertion order so iteration is deterministic.
	order []K
}

// New returns a graph containing only the root node.
func New[K comparable](root K) *Graph[K] {
	return &Graph[K]{
		Root:  root,
		Nodes: map[K][]Child[K]{root: nil},
		order: []K{root},
	}
}

// NodeOrder returns all node identifiers, root first, in insertion order.
func (g *Graph[K]) NodeOrder() []K {
	out := make([]K, len(g.order))
	copy(out, g.order)
	return out
}

// AddNode inserts a node with no edges.
func (g *Graph[K]) AddNode(id K) error {
	if _, ok := g.Nodes[id]; ok {
		return &DuplicateNodeError[K]{ID: id}
	}
	g.Nodes[id] = nil
	g.order = append(g.order, id)
	return nil
}

// AddEdge inserts a weighted edge. Both endpoints must already exist and the
// destination may not be the root.
func (g *Graph[K]) AddEdge(from, to K, probability float64) error {
	if _, ok := g.Nodes[from]; !ok {
		return &MissingNodeError[K]{ID: from}
	}
	if _, ok := g.Nodes[to]; !ok {
		return &MissingNodeError[K]{ID: to}
	}
	if to == g.Root {
		return &WrongEdgeEndpointError[K]{From: from, To: to}
	}
	g.Nodes[from] = append(g.Nodes[from], Child[K]{ID: to, Probability: probability})
	return nil
}

// AddAmbiguitySet appends one belief-partition block. Members must exist and
// the root may not belong to any block.
func (g *Graph[K]) AddAmbiguitySet(members []K) error {
	if len(members) == 0 {
		return &ValidationError{Reason: "ambiguity set must contain at least one node"}
	}
	for _, id := range members {
		if _, ok := g.Nodes[id]; !ok {
			return &MissingNodeError[K]{ID: id}
		}
		if id == g.Root {
			return &ValidationError{Reason: "the root node cannot belong to an ambiguity set"}
		}
	}
	block := make([]K, len(members))
	copy(block, members)
	g.BeliefPartition = append(g.BeliefPartition, block)
	return nil
}

// Validate checks the structural invariants: every node's outgoing
// probabilities sum to a value in [0, 1], individual probabilities are
// non-negative, and the belief partition (if declared) disjointly covers
// every non-root node.
func (g *Graph[K]) Validate() error {
	for id, children := range g.Nodes {
		total := 0.0
		for _, child := range children {
			if child.Probability < 0 || math.IsNaN(child.Probability) {
				return &ValidationError{
					Reason: fmt.Sprintf("node %v has an edge to %v with invalid probability %v",
						id, child.ID, child.Probability),
				}
			}
			total += child.Probability
		}
		if total > 1+probabilityTolerance {
			return &ValidationError{
				Reason: fmt.Sprintf("node %v has outgoing probabilities summing to %v, expected a value in [0, 1]",
					id, total),
			}
		}
	}
	if len(g.BeliefPartition) == 0 {
		return nil
	}
	seen := make(map[K]bool, len(g.Nodes)-1)
	for _, block := range g.BeliefPartition {
		for _, id := range block {
			if id == g.Root {
				return &ValidationError{Reason: "belief partition contains the root node"}
			}
			if seen[id] {
				return &ValidationError{
					Reason: fmt.Sprintf("node %v appears in more than one belief-partition block", id),
				}
			}
			seen[id] = true
		}
	}
	if len(seen) != len(g.Nodes)-1 {
		return &ValidationError{
			Reason: fmt.Sprintf("belief partition covers %d nodes but the graph has %d non-root nodes",
				len(seen), len(g.Nodes)-1),
		}
	}
	return nil
}
