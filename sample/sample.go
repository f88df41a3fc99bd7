// Package sample generates scenario paths: the sequence of visited nodes
// and realized noises driving one forward pass.
package sample

import (
	"fmt"
	"time"

	"golang.org/x/exp/rand"

	"sddp/graph"
	"sddp/policy"
)

// Step is one visited node and its realized noise.
type Step[K comparable] struct {
	Node  K
	Noise any
}

// Scheme draws one scenario path through a policy graph.
// terminatedDueToCycle is set when the walk was cut off by a depth limit
// while the current node still had children, which only happens on cyclic
// graphs.
type Scheme[K comparable] interface {
	Sample(pg *policy.PolicyGraph[K]) (path []Step[K], terminatedDueToCycle bool, err error)
}

// InSampleMonteCarlo walks the graph using its own transition probabilities
// and each node's own noise distribution. A transition-probability deficit
// below 1 is an implicit stop outcome.
type InSampleMonteCarlo[K comparable] struct {
	rng              *rand.Rand
	maxDepth         int
	terminateOnCycle bool
}

// Option configures an InSampleMonteCarlo.
type Option[K comparable] func(*InSampleMonteCarlo[K])

// WithSeed fixes the random stream; identical seeds over an unchanged model
// reproduce identical paths.
func WithSeed[K comparable](seed uint64) Option[K] {
	return func(s *InSampleMonteCarlo[K]) {
		s.rng = rand.New(rand.NewSource(seed))
	}
}

// WithMaxDepth bounds the walk length, required on cyclic graphs where the
// walk would otherwise not terminate with probability one per iteration.
func WithMaxDepth[K comparable](depth int) Option[K] {
	return func(s *InSampleMonteCarlo[K]) {
		if depth > 0 {
			s.maxDepth = depth
		}
	}
}

// WithTerminateOnCycle cuts the walk the first time it would revisit a node,
// so each path traverses a cycle at most once.
func WithTerminateOnCycle[K comparable]() Option[K] {
	return func(s *InSampleMonteCarlo[K]) {
		s.terminateOnCycle = true
	}
}

func NewInSampleMonteCarlo[K comparable](options ...Option[K]) *InSampleMonteCarlo[K] {
	s := &InSampleMonteCarlo[K]{}
	for _, option := range options {
		option(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(uint64(time.Now().UnixNano())))
	}
	return s
}

func (s *InSampleMonteCarlo[K]) Sample(pg *policy.PolicyGraph[K]) ([]Step[K], bool, error) {
	var path []Step[K]
	var visited map[K]bool
	if s.terminateOnCycle {
		visited = make(map[K]bool)
	}
	current, stop := s.pickChild(pg.RootChildren)
	for !stop {
		if s.terminateOnCycle {
			if visited[current] {
				return path, true, nil
			}
			visited[current] = true
		}
		node, ok := pg.Nodes[current]
		if !ok {
			return nil, false, fmt.Errorf("scenario path reached unknown node %v", current)
		}
		noise, err := s.pickNoise(node.Noises)
		if err != nil {
			return nil, false, fmt.Errorf("node %v: %w", current, err)
		}
		path = append(path, Step[K]{Node: current, Noise: noise})

		if len(node.Children) == 0 {
			return path, false, nil
		}
		if s.maxDepth > 0 && len(path) >= s.maxDepth {
			return path, true, nil
		}
		current, stop = s.pickChild(node.Children)
	}
	return path, false, nil
}

// pickChild draws from the categorical distribution over children, treating
// any probability deficit as a stop outcome.
func (s *InSampleMonteCarlo[K]) pickChild(children []graph.Child[K]) (K, bool) {
	u := s.rng.Float64()
	for _, child := range children {
		u -= child.Probability
		if u < 0 {
			return child.ID, false
		}
	}
	var zero K
	return zero, true
}

func (s *InSampleMonteCarlo[K]) pickNoise(noises []policy.Noise) (any, error) {
	u := s.rng.Float64()
	for _, noise := range noises {
		u -= noise.Probability
		if u < 0 {
			return noise.Term, nil
		}
	}
	// Mass sums to 1 by construction; only rounding can land here.
	if len(noises) == 0 {
		return nil, fmt.Errorf("node has no noise terms")
	}
	return noises[len(noises)-1].Term, nil
}
