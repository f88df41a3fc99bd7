package train

import (
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/exp/rand"

	"sddp/belief"
	"sddp/policy"
	"sddp/risk"
	"sddp/sample"
)

// Option configures a training run.
type Option[K comparable] func(*trainer[K]) error

// WithSamplingScheme replaces the default in-sample Monte Carlo scheme.
func WithSamplingScheme[K comparable](scheme sample.Scheme[K]) Option[K] {
	return func(t *trainer[K]) error {
		t.scheme = scheme
		return nil
	}
}

// WithRiskMeasure applies one measure at every node and at the root bound
// computation.
func WithRiskMeasure[K comparable](m risk.Measure) Option[K] {
	return func(t *trainer[K]) error {
		t.rootRisk = m
		t.nodeRisk = func(K) risk.Measure { return m }
		return nil
	}
}

// WithNodeRiskMeasure assigns measures per node; the root keeps whatever
// WithRiskMeasure set (Expectation by default).
func WithNodeRiskMeasure[K comparable](pick func(K) risk.Measure) Option[K] {
	return func(t *trainer[K]) error {
		t.nodeRisk = pick
		return nil
	}
}

// WithCycleDiscretizationDelta sets the distance threshold of the
// starting-state cache used on cyclic graphs.
func WithCycleDiscretizationDelta[K comparable](delta float64) Option[K] {
	return func(t *trainer[K]) error {
		if delta < 0 {
			return &ConfigurationError{Reason: "cycle discretization delta must be non-negative"}
		}
		t.cycleDelta = delta
		return nil
	}
}

// WithRefineAtSimilarNodes also refines every node sharing a superset of a
// refined node's children, reusing the duals and objectives already
// computed and reweighting only the probabilities. This amortizes backward
// solves across structurally identical stages.
func WithRefineAtSimilarNodes[K comparable]() Option[K] {
	return func(t *trainer[K]) error {
		t.refineSimilar = true
		return nil
	}
}

// WithStoppingRules appends stopping rules.
func WithStoppingRules[K comparable](rules ...StoppingRule) Option[K] {
	return func(t *trainer[K]) error {
		t.rules = append(t.rules, rules...)
		return nil
	}
}

// WithIterationLimit is shorthand for an IterationLimit stopping rule.
func WithIterationLimit[K comparable](limit int) Option[K] {
	return func(t *trainer[K]) error {
		if limit < 1 {
			return &ConfigurationError{Reason: "iteration limit must be at least 1"}
		}
		t.rules = append(t.rules, IterationLimit(limit))
		return nil
	}
}

// WithTimeLimit is shorthand for a TimeLimit stopping rule.
func WithTimeLimit[K comparable](limit time.Duration) Option[K] {
	return func(t *trainer[K]) error {
		if limit <= 0 {
			return &ConfigurationError{Reason: "time limit must be positive"}
		}
		t.rules = append(t.rules, TimeLimit(limit))
		return nil
	}
}

// WithSeed fixes the trainer's own random stream (starting-state cache
// draws). The sampling scheme carries its own seed.
func WithSeed[K comparable](seed uint64) Option[K] {
	return func(t *trainer[K]) error {
		t.rng = rand.New(rand.NewSource(seed))
		return nil
	}
}

// WithLogger routes training progress through the given logger.
func WithLogger[K comparable](logger zerolog.Logger) Option[K] {
	return func(t *trainer[K]) error {
		t.logger = logger
		return nil
	}
}

type trainer[K comparable] struct {
	pg            *policy.PolicyGraph[K]
	scheme        sample.Scheme[K]
	rootRisk      risk.Measure
	nodeRisk      func(K) risk.Measure
	cycleDelta    float64
	refineSimilar bool
	rules         []StoppingRule
	logger        zerolog.Logger
	rng           *rand.Rand

	// starting caches re-entry states per node for cyclic graphs.
	starting map[K][]map[string]float64
	// phi is the transition-probability map, root included.
	phi map[K]map[K]float64
	// similar maps a node to the nodes whose children are a superset of
	// its own; populated only when refineSimilar is set.
	similar map[K][]K
	updater *belief.Updater[K]
}

func newTrainer[K comparable](pg *policy.PolicyGraph[K], options ...Option[K]) (*trainer[K], error) {
	t := &trainer[K]{
		pg:       pg,
		rootRisk: risk.Expectation{},
		nodeRisk: func(K) risk.Measure { return risk.Expectation{} },
		logger:   zerolog.Nop(),
		starting: make(map[K][]map[string]float64),
	}
	for _, option := range options {
		if err := option(t); err != nil {
			return nil, err
		}
	}
	if len(t.rules) == 0 {
		return nil, &ConfigurationError{Reason: "at least one stopping rule is required"}
	}
	if t.scheme == nil {
		t.scheme = sample.NewInSampleMonteCarlo[K]()
	}
	if t.rng == nil {
		t.rng = rand.New(rand.NewSource(uint64(time.Now().UnixNano())))
	}

	t.phi = transitionMap(pg)
	if t.refineSimilar {
		t.similar = similarNodes(pg)
	}
	if len(pg.BeliefPartition) > 0 {
		t.updater = newBeliefUpdater(pg)
	}
	return t, nil
}

// transitionMap flattens the policy graph's edges into phi(i, j), including
// the root's outgoing edges.
func transitionMap[K comparable](pg *policy.PolicyGraph[K]) map[K]map[K]float64 {
	phi := make(map[K]map[K]float64, len(pg.Nodes)+1)
	phi[pg.Root] = make(map[K]float64, len(pg.RootChildren))
	for _, child := range pg.RootChildren {
		phi[pg.Root][child.ID] = child.Probability
	}
	for id, node := range pg.Nodes {
		row := make(map[K]float64, len(node.Children))
		for _, child := range node.Children {
			row[child.ID] = child.Probability
		}
		phi[id] = row
	}
	return phi
}

// similarNodes finds, for every node with children, the other nodes whose
// child sets are a superset of its own. Those nodes can reuse its backward
// solves under reweighted probabilities.
func similarNodes[K comparable](pg *policy.PolicyGraph[K]) map[K][]K {
	childSets := make(map[K]map[K]bool, len(pg.Nodes))
	for id, node := range pg.Nodes {
		set := make(map[K]bool, len(node.Children))
		for _, child := range node.Children {
			set[child.ID] = true
		}
		childSets[id] = set
	}
	similar := make(map[K][]K)
	for _, id := range pg.NodeOrder() {
		mine := childSets[id]
		if len(mine) == 0 {
			continue
		}
		for _, other := range pg.NodeOrder() {
			if other == id {
				continue
			}
			if containsAll(childSets[other], mine) {
				similar[id] = append(similar[id], other)
			}
		}
	}
	return similar
}

func containsAll[K comparable](superset, subset map[K]bool) bool {
	if len(superset) < len(subset) {
		return false
	}
	for id := range subset {
		if !superset[id] {
			return false
		}
	}
	return true
}

func newBeliefUpdater[K comparable](pg *policy.PolicyGraph[K]) *belief.Updater[K] {
	omega := make(map[K]map[any]float64, len(pg.Nodes))
	for id, node := range pg.Nodes {
		dist := make(map[any]float64, len(node.Noises))
		for _, noise := range node.Noises {
			dist[noise.Term] += noise.Probability
		}
		omega[id] = dist
	}
	return belief.NewUpdater(pg.NodeOrder(), transitionMap(pg), omega, pg.BeliefPartition)
}

func (t *trainer[K]) measureFor(id K) risk.Measure {
	if m := t.nodeRisk(id); m != nil {
		return m
	}
	return risk.Expectation{}
}
