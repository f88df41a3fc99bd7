// Package policy turns a validated graph into a trainable policy graph: one
// optimization subproblem per node, its discrete noise terms, and its
// Bellman function. The subproblem itself is opaque to the engine; see
// package solve for the contract.
package policy

import (
	"fmt"
	"math"

	"sddp/bellman"
	"sddp/graph"
	"sddp/solve"
)

// noiseTolerance bounds floating-point drift in a noise distribution's mass.
const noiseTolerance = 1e-8

// Noise is one discrete noise realization and its probability.
type Noise struct {
	Term        any
	Probability float64
}

// BeliefState marks a node as belonging to a belief-partition block and
// carries the current belief over that node during a forward pass.
type BeliefState[K comparable] struct {
	// Partition is the index of the block the node belongs to.
	Partition int
	// Belief is the probability currently assigned to each node of the
	// graph; mass outside the active block is zero.
	Belief map[K]float64
}

// Node is one decision stage of the policy graph.
type Node[K comparable] struct {
	Index      K
	Children   []graph.Child[K]
	Noises     []Noise
	Subproblem solve.Subproblem
	Bellman    bellman.Function
	Belief     *BeliefState[K]
}

// PolicyGraph is the trainable model. It is built once from a validated
// graph; during training only cut insertion mutates it.
type PolicyGraph[K comparable] struct {
	Sense           solve.Sense
	Root            K
	RootChildren    []graph.Child[K]
	InitialState    map[string]float64
	Nodes           map[K]*Node[K]
	BeliefPartition [][]K

	// order mirrors the source graph's insertion order, root excluded.
	order []K
}

// NodeOrder returns the non-root node identifiers in a deterministic order.
func (pg *PolicyGraph[K]) NodeOrder() []K {
	out := make([]K, len(pg.order))
	copy(out, pg.order)
	return out
}

// NodeSpec is what the builder callback returns for one node: its populated
// subproblem and its noise distribution. An empty noise list gets a single
// dummy realization of probability 1.
type NodeSpec struct {
	Subproblem solve.Subproblem
	Noises     []Noise
}

// Builder populates one node's subproblem.
type Builder[K comparable] func(id K) (NodeSpec, error)

// BuildOption configures policy graph construction.
type BuildOption func(*buildOptions)

type buildOptions struct {
	lower      float64
	upper      float64
	newBellman func() (bellman.Function, error)
}

// WithCostToGoBounds sets the user-supplied bounds of every node's
// value-to-go variable.
func WithCostToGoBounds(lower, upper float64) BuildOption {
	return func(o *buildOptions) {
		o.lower = lower
		o.upper = upper
	}
}

// WithBellman overrides the Bellman function variant; the factory runs once
// per node.
func WithBellman(factory func() (bellman.Function, error)) BuildOption {
	return func(o *buildOptions) {
		o.newBellman = factory
	}
}

// Build constructs the policy graph per the construction contract: validate
// the graph eagerly, build every non-root node via the builder, inject
// dummy noise where none was declared, attach children, then initialize the
// Bellman function (after children are known, since terminal nodes pin the
// value-to-go while interior nodes bound it), and finally attach belief
// state to partitioned nodes.
func Build[K comparable](g *graph.Graph[K], sense solve.Sense, initialState map[string]float64,
	build Builder[K], options ...BuildOption) (*PolicyGraph[K], error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	opts := &buildOptions{lower: -1e9, upper: 1e9}
	for _, option := range options {
		option(opts)
	}
	if opts.newBellman == nil {
		lower, upper := opts.lower, opts.upper
		opts.newBellman = func() (bellman.Function, error) {
			return bellman.NewAverageCut(lower, upper)
		}
	}

	pg := &PolicyGraph[K]{
		Sense:           sense,
		Root:            g.Root,
		RootChildren:    g.Nodes[g.Root],
		InitialState:    cloneState(initialState),
		Nodes:           make(map[K]*Node[K], len(g.Nodes)-1),
		BeliefPartition: g.BeliefPartition,
	}

	for _, id := range g.NodeOrder() {
		if id == g.Root {
			continue
		}
		spec, err := build(id)
		if err != nil {
			return nil, fmt.Errorf("building node %v: %w", id, err)
		}
		if spec.Subproblem == nil {
			return nil, fmt.Errorf("building node %v: builder returned no subproblem", id)
		}
		noises := spec.Noises
		if len(noises) == 0 {
			noises = []Noise{{Term: nil, Probability: 1}}
		}
		if err := validateNoises(noises); err != nil {
			return nil, fmt.Errorf("node %v: %w", id, err)
		}
		pg.Nodes[id] = &Node[K]{
			Index:      id,
			Noises:     noises,
			Subproblem: spec.Subproblem,
		}
		pg.order = append(pg.order, id)
	}

	for _, id := range pg.order {
		node := pg.Nodes[id]
		node.Children = g.Nodes[id]

		f, err := opts.newBellman()
		if err != nil {
			return nil, fmt.Errorf("node %v: %w", id, err)
		}
		if err := f.Initialize(node.Subproblem, sense, len(node.Children) > 0); err != nil {
			return nil, fmt.Errorf("initializing Bellman function at node %v: %w", id, err)
		}
		node.Bellman = f
	}

	if err := attachBeliefStates(pg); err != nil {
		return nil, err
	}
	return pg, nil
}

// attachBeliefStates allocates, for every partitioned node, one auxiliary
// belief-weight variable per member of its block and seeds a uniform belief
// over the block.
func attachBeliefStates[K comparable](pg *PolicyGraph[K]) error {
	for bi, block := range pg.BeliefPartition {
		for _, id := range block {
			node := pg.Nodes[id]
			bs, ok := node.Subproblem.(solve.BeliefSubproblem)
			if !ok {
				return fmt.Errorf("node %v belongs to a belief partition but its subproblem cannot host belief weights", id)
			}
			belief := make(map[K]float64, len(block))
			for _, member := range block {
				if err := bs.AddBeliefWeight(fmt.Sprint(member), 1.0); err != nil {
					return fmt.Errorf("node %v: adding belief weight for %v: %w", id, member, err)
				}
				belief[member] = 1.0 / float64(len(block))
			}
			node.Belief = &BeliefState[K]{Partition: bi, Belief: belief}
		}
	}
	return nil
}

func validateNoises(noises []Noise) error {
	total := 0.0
	for _, noise := range noises {
		if noise.Probability < 0 || math.IsNaN(noise.Probability) {
			return fmt.Errorf("noise term has invalid probability %v", noise.Probability)
		}
		total += noise.Probability
	}
	if math.Abs(total-1) > noiseTolerance {
		return fmt.Errorf("noise probabilities sum to %v, expected 1", total)
	}
	return nil
}

func cloneState(state map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(state))
	for name, value := range state {
		out[name] = value
	}
	return out
}

// CloneState copies a state point; solves mutate maps in place, so anything
// recorded across steps must be copied first.
func CloneState(state map[string]float64) map[string]float64 {
	return cloneState(state)
}
