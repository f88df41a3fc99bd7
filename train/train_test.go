package train

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"sddp/graph"
	"sddp/policy"
	"sddp/sample"
	"sddp/solve"
)

// fakeSub is a scripted subproblem: a fixed stage objective, outgoing state
// echoing the incoming one, and call counting.
type fakeSub struct {
	stageCost  float64
	status     solve.Status
	incoming   map[string]float64
	noise      any
	solves     int
	dualSolves int
	cutsAdded  int
}

type fakeCutHandle struct{}

func (fakeCutHandle) Remove() error { return nil }

func (f *fakeSub) StateNames() []string { return []string{"x"} }

func (f *fakeSub) FixIncoming(state map[string]float64) {
	f.incoming = policy.CloneState(state)
}

func (f *fakeSub) Parameterize(noise any) { f.noise = noise }

func (f *fakeSub) Solve(requireDuals bool) (solve.Result, error) {
	f.solves++
	if requireDuals {
		f.dualSolves++
	}
	result := solve.Result{
		Status:         f.status,
		StageObjective: f.stageCost,
		Objective:      f.stageCost,
		Outgoing:       policy.CloneState(f.incoming),
	}
	if requireDuals {
		result.Duals = map[string]float64{"x": 0}
	}
	return result, nil
}

func (f *fakeSub) AddCut(float64, map[string]float64) (solve.CutHandle, error) {
	f.cutsAdded++
	return fakeCutHandle{}, nil
}

func (f *fakeSub) SetCostToGoBounds(float64, float64) {}
func (f *fakeSub) FixCostToGo(float64)                {}

type fakeBeliefSub struct {
	fakeSub
}

func (f *fakeBeliefSub) AddBeliefWeight(string, float64) error { return nil }

// buildFakeChain builds a linear policy graph over scripted subproblems.
func buildFakeChain(t *testing.T, stageCosts []float64) (*policy.PolicyGraph[int], map[int]*fakeSub) {
	t.Helper()
	g, err := graph.Linear(len(stageCosts))
	require.NoError(t, err)
	subs := map[int]*fakeSub{}
	pg, err := policy.Build(g, solve.Minimize, map[string]float64{"x": 0},
		func(id int) (policy.NodeSpec, error) {
			sub := &fakeSub{stageCost: stageCosts[id-1]}
			subs[id] = sub
			return policy.NodeSpec{Subproblem: sub}, nil
		})
	require.NoError(t, err)
	return pg, subs
}

func TestTrainConfiguration(t *testing.T) {
	pg, _ := buildFakeChain(t, []float64{1})

	t.Run("requires a stopping rule", func(t *testing.T) {
		_, err := Train(context.Background(), pg)
		var cerr *ConfigurationError
		require.ErrorAs(t, err, &cerr)
	})

	t.Run("rejects a negative cycle delta", func(t *testing.T) {
		_, err := Train(context.Background(), pg,
			WithIterationLimit[int](1),
			WithCycleDiscretizationDelta[int](-0.5))
		var cerr *ConfigurationError
		require.ErrorAs(t, err, &cerr)
	})

	t.Run("rejects a non-positive iteration limit", func(t *testing.T) {
		_, err := Train(context.Background(), pg, WithIterationLimit[int](0))
		var cerr *ConfigurationError
		require.ErrorAs(t, err, &cerr)
	})
}

func TestTrainTermination(t *testing.T) {
	t.Run("iteration limit stops after exactly that many iterations", func(t *testing.T) {
		pg, _ := buildFakeChain(t, []float64{1, 2, 3})

		result, err := Train(context.Background(), pg, WithIterationLimit[int](4))
		require.NoError(t, err)
		require.Equal(t, StatusIterationLimit, result.Status)
		require.Len(t, result.Log, 4)
		for i, entry := range result.Log {
			require.Equal(t, i+1, entry.Number)
		}
	})

	t.Run("cancellation interrupts with the partial log", func(t *testing.T) {
		pg, _ := buildFakeChain(t, []float64{1})
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Cancel from a stopping rule's side effect after two
		// iterations; the loop notices at the next boundary.
		canceller := stoppingRuleFunc(func(log []Iteration) (Status, bool) {
			if len(log) == 2 {
				cancel()
			}
			return statusNotSolved, false
		})
		result, err := Train(ctx, pg,
			WithStoppingRules[int](canceller),
			WithIterationLimit[int](50))
		require.NoError(t, err)
		require.Equal(t, StatusInterrupted, result.Status)
		require.Len(t, result.Log, 2, "The log up to the interrupt is preserved")
	})

	t.Run("infeasible subproblem aborts with node identity", func(t *testing.T) {
		pg, subs := buildFakeChain(t, []float64{1, 2})
		subs[2].status = solve.StatusInfeasible

		result, err := Train(context.Background(), pg, WithIterationLimit[int](4))
		require.Nil(t, result)
		var serr *SolveError[int]
		require.ErrorAs(t, err, &serr)
		require.Equal(t, 2, serr.Node)
		require.Equal(t, solve.StatusInfeasible, serr.Status)
	})
}

type stoppingRuleFunc func(log []Iteration) (Status, bool)

func (f stoppingRuleFunc) ShouldStop(log []Iteration) (Status, bool) { return f(log) }

func TestForwardAccounting(t *testing.T) {
	t.Run("simulation value is the exact sum of stage objectives", func(t *testing.T) {
		costs := []float64{1.5, 2.25, 4.125}
		pg, _ := buildFakeChain(t, costs)

		result, err := Train(context.Background(), pg, WithIterationLimit[int](1))
		require.NoError(t, err)
		require.Equal(t, 1.5+2.25+4.125, result.Log[0].SimulationValue,
			"Cumulative value must be the exact sum, not an approximation")
	})

	t.Run("fixed seeds reproduce the training trajectory", func(t *testing.T) {
		run := func() []Iteration {
			g, err := graph.Linear(3)
			require.NoError(t, err)
			pg, err := policy.Build(g, solve.Minimize, map[string]float64{"x": 0},
				func(id int) (policy.NodeSpec, error) {
					return policy.NodeSpec{
						Subproblem: &fakeSub{stageCost: float64(id)},
						Noises: []policy.Noise{
							{Term: "lo", Probability: 0.5},
							{Term: "hi", Probability: 0.5},
						},
					}, nil
				})
			require.NoError(t, err)

			result, err := Train(context.Background(), pg,
				WithIterationLimit[int](6),
				WithSeed[int](7),
				WithSamplingScheme[int](sample.NewInSampleMonteCarlo(sample.WithSeed[int](42))))
			require.NoError(t, err)
			return result.Log
		}

		first := run()
		second := run()
		require.Equal(t, len(first), len(second))
		for i := range first {
			require.Equal(t, first[i].Bound, second[i].Bound)
			require.Equal(t, first[i].SimulationValue, second[i].SimulationValue)
		}
	})
}

func TestRefineAtSimilarNodes(t *testing.T) {
	// a and b share the single child c; only a is reachable, but
	// refining a should refine b from the same backward solves.
	build := func(t *testing.T) (*policy.PolicyGraph[string], map[string]*fakeSub) {
		t.Helper()
		g := graph.New("root")
		for _, id := range []string{"a", "b", "c"} {
			require.NoError(t, g.AddNode(id))
		}
		require.NoError(t, g.AddEdge("root", "a", 1.0))
		require.NoError(t, g.AddEdge("a", "c", 1.0))
		require.NoError(t, g.AddEdge("b", "c", 1.0))
		subs := map[string]*fakeSub{}
		pg, err := policy.Build(g, solve.Minimize, map[string]float64{"x": 0},
			func(id string) (policy.NodeSpec, error) {
				sub := &fakeSub{}
				subs[id] = sub
				return policy.NodeSpec{Subproblem: sub}, nil
			})
		require.NoError(t, err)
		return pg, subs
	}

	t.Run("reuses backward solves at structurally similar nodes", func(t *testing.T) {
		pg, subs := build(t)

		_, err := Train(context.Background(), pg,
			WithIterationLimit[string](1),
			WithRefineAtSimilarNodes[string]())
		require.NoError(t, err)

		require.Equal(t, 1, subs["c"].dualSolves,
			"The shared child is solved once, not once per similar node")
		require.Equal(t, 1, subs["a"].cutsAdded)
		require.Equal(t, 1, subs["b"].cutsAdded,
			"The similar node receives a cut without re-solving its children")
	})

	t.Run("without the flag only visited nodes are refined", func(t *testing.T) {
		pg, subs := build(t)

		_, err := Train(context.Background(), pg, WithIterationLimit[string](1))
		require.NoError(t, err)

		require.Equal(t, 1, subs["a"].cutsAdded)
		require.Zero(t, subs["b"].cutsAdded)
	})
}

func TestBeliefPropagation(t *testing.T) {
	g := graph.New(0)
	require.NoError(t, g.AddNode(1))
	require.NoError(t, g.AddNode(2))
	require.NoError(t, g.AddEdge(0, 1, 0.5))
	require.NoError(t, g.AddEdge(0, 2, 0.5))
	require.NoError(t, g.AddAmbiguitySet([]int{1, 2}))

	subs := map[int]*fakeBeliefSub{}
	pg, err := policy.Build(g, solve.Minimize, map[string]float64{"x": 0},
		func(id int) (policy.NodeSpec, error) {
			sub := &fakeBeliefSub{}
			subs[id] = sub
			term := "A"
			if id == 2 {
				term = "B"
			}
			return policy.NodeSpec{
				Subproblem: sub,
				Noises:     []policy.Noise{{Term: term, Probability: 1}},
			}, nil
		})
	require.NoError(t, err)

	_, err = Train(context.Background(), pg,
		WithIterationLimit[int](1),
		WithSamplingScheme[int](sample.NewInSampleMonteCarlo(sample.WithSeed[int](3))))
	require.NoError(t, err)

	// Whichever node was visited, its noise identifies it uniquely, so
	// the posterior collapses onto it.
	visited := 1
	if subs[2].solves > subs[1].solves {
		visited = 2
	}
	belief := pg.Nodes[visited].Belief.Belief
	require.InDelta(t, 1.0, belief[visited], 1e-12)
	require.InDelta(t, 0.0, belief[3-visited], 1e-12)
}
