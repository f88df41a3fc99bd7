package policy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sddp/graph"
	"sddp/solve"
)

type stubSubproblem struct {
	ctgFixed      *float64
	ctgBounded    bool
	lower, upper  float64
	beliefWeights []string
}

type stubHandle struct{}

func (stubHandle) Remove() error { return nil }

func (s *stubSubproblem) StateNames() []string             { return []string{"x"} }
func (s *stubSubproblem) FixIncoming(map[string]float64)   {}
func (s *stubSubproblem) Parameterize(any)                 {}
func (s *stubSubproblem) Solve(bool) (solve.Result, error) { return solve.Result{}, nil }
func (s *stubSubproblem) AddCut(float64, map[string]float64) (solve.CutHandle, error) {
	return stubHandle{}, nil
}
func (s *stubSubproblem) SetCostToGoBounds(lower, upper float64) {
	s.ctgBounded = true
	s.lower, s.upper = lower, upper
}
func (s *stubSubproblem) FixCostToGo(v float64) { s.ctgFixed = &v }

type beliefStub struct {
	stubSubproblem
}

func (s *beliefStub) AddBeliefWeight(tag string, upper float64) error {
	s.beliefWeights = append(s.beliefWeights, tag)
	return nil
}

func linearGraph(t *testing.T, stages int) *graph.Graph[int] {
	t.Helper()
	g, err := graph.Linear(stages)
	require.NoError(t, err)
	return g
}

func TestBuild(t *testing.T) {
	t.Run("validates the graph before building any node", func(t *testing.T) {
		g := graph.New(0)
		require.NoError(t, g.AddNode(1))
		require.NoError(t, g.AddNode(2))
		require.NoError(t, g.AddEdge(0, 1, 0.9))
		require.NoError(t, g.AddEdge(0, 2, 0.9))

		called := false
		_, err := Build(g, solve.Minimize, nil, func(id int) (NodeSpec, error) {
			called = true
			return NodeSpec{Subproblem: &stubSubproblem{}}, nil
		})

		var verr *graph.ValidationError
		require.ErrorAs(t, err, &verr)
		require.False(t, called, "Validation failures must precede node construction")
	})

	t.Run("injects a dummy noise when none declared", func(t *testing.T) {
		pg, err := Build(linearGraph(t, 1), solve.Minimize, nil, func(id int) (NodeSpec, error) {
			return NodeSpec{Subproblem: &stubSubproblem{}}, nil
		})
		require.NoError(t, err)

		node := pg.Nodes[1]
		require.Len(t, node.Noises, 1)
		require.Nil(t, node.Noises[0].Term)
		require.Equal(t, 1.0, node.Noises[0].Probability)
	})

	t.Run("rejects noise distributions that do not sum to one", func(t *testing.T) {
		_, err := Build(linearGraph(t, 1), solve.Minimize, nil, func(id int) (NodeSpec, error) {
			return NodeSpec{
				Subproblem: &stubSubproblem{},
				Noises:     []Noise{{Term: "a", Probability: 0.5}},
			}, nil
		})
		require.Error(t, err)
	})

	t.Run("pins terminal and bounds interior value-to-go", func(t *testing.T) {
		subproblems := map[int]*stubSubproblem{}
		pg, err := Build(linearGraph(t, 2), solve.Minimize, nil, func(id int) (NodeSpec, error) {
			sp := &stubSubproblem{}
			subproblems[id] = sp
			return NodeSpec{Subproblem: sp}, nil
		}, WithCostToGoBounds(0, 500))
		require.NoError(t, err)
		require.Len(t, pg.Nodes, 2)

		require.True(t, subproblems[1].ctgBounded, "Interior node gets a bounded value-to-go")
		require.Equal(t, 0.0, subproblems[1].lower)
		require.Equal(t, 500.0, subproblems[1].upper)
		require.Nil(t, subproblems[1].ctgFixed)

		require.NotNil(t, subproblems[2].ctgFixed, "Terminal node pins the value-to-go")
		require.Equal(t, 0.0, *subproblems[2].ctgFixed)
		require.False(t, subproblems[2].ctgBounded)
	})

	t.Run("copies the initial state", func(t *testing.T) {
		initial := map[string]float64{"x": 3}
		pg, err := Build(linearGraph(t, 1), solve.Minimize, initial, func(id int) (NodeSpec, error) {
			return NodeSpec{Subproblem: &stubSubproblem{}}, nil
		})
		require.NoError(t, err)

		initial["x"] = 99
		require.Equal(t, 3.0, pg.InitialState["x"],
			"Mutating the caller's map must not leak into the policy graph")
	})
}

func TestBuildBeliefPartition(t *testing.T) {
	partitionedGraph := func(t *testing.T) *graph.Graph[int] {
		t.Helper()
		g := graph.New(0)
		require.NoError(t, g.AddNode(1))
		require.NoError(t, g.AddNode(2))
		require.NoError(t, g.AddEdge(0, 1, 0.5))
		require.NoError(t, g.AddEdge(0, 2, 0.5))
		require.NoError(t, g.AddAmbiguitySet([]int{1, 2}))
		return g
	}

	t.Run("allocates one weight per block member", func(t *testing.T) {
		subproblems := map[int]*beliefStub{}
		pg, err := Build(partitionedGraph(t), solve.Minimize, nil, func(id int) (NodeSpec, error) {
			sp := &beliefStub{}
			subproblems[id] = sp
			return NodeSpec{Subproblem: sp}, nil
		})
		require.NoError(t, err)

		for id := 1; id <= 2; id++ {
			require.ElementsMatch(t, []string{"1", "2"}, subproblems[id].beliefWeights)
			bs := pg.Nodes[id].Belief
			require.NotNil(t, bs)
			require.Equal(t, 0, bs.Partition)
			require.InDelta(t, 0.5, bs.Belief[1], 1e-12, "Belief starts uniform over the block")
			require.InDelta(t, 0.5, bs.Belief[2], 1e-12)
		}
	})

	t.Run("requires a belief-capable subproblem", func(t *testing.T) {
		_, err := Build(partitionedGraph(t), solve.Minimize, nil, func(id int) (NodeSpec, error) {
			return NodeSpec{Subproblem: &stubSubproblem{}}, nil
		})
		require.Error(t, err)
	})
}
