package graph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMutation(t *testing.T) {
	t.Run("rejects duplicate nodes", func(t *testing.T) {
		g := New("root")
		require.NoError(t, g.AddNode("a"))

		err := g.AddNode("a")
		var dup *DuplicateNodeError[string]
		require.ErrorAs(t, err, &dup, "Adding an existing node should fail")
		require.Equal(t, "a", dup.ID)
	})

	t.Run("rejects edges to unknown nodes", func(t *testing.T) {
		g := New("root")
		require.NoError(t, g.AddNode("a"))

		err := g.AddEdge("a", "b", 0.5)
		var missing *MissingNodeError[string]
		require.ErrorAs(t, err, &missing, "Edges must reference existing nodes")
		require.Equal(t, "b", missing.ID)
	})

	t.Run("rejects edges into the root", func(t *testing.T) {
		g := New("root")
		require.NoError(t, g.AddNode("a"))

		err := g.AddEdge("a", "root", 0.5)
		var wrong *WrongEdgeEndpointError[string]
		require.ErrorAs(t, err, &wrong, "The root node cannot be a child")
	})

	t.Run("rejects ambiguity sets containing the root", func(t *testing.T) {
		g := New("root")
		require.NoError(t, g.AddNode("a"))

		err := g.AddAmbiguitySet([]string{"a", "root"})
		require.Error(t, err, "Ambiguity sets must exclude the root")
	})
}

func TestValidate(t *testing.T) {
	t.Run("accepts sub-stochastic outgoing probabilities", func(t *testing.T) {
		g := New(0)
		require.NoError(t, g.AddNode(1))
		require.NoError(t, g.AddNode(2))
		require.NoError(t, g.AddEdge(0, 1, 1.0))
		require.NoError(t, g.AddEdge(1, 2, 0.4))

		require.NoError(t, g.Validate(),
			"Probabilities summing to at most 1 should validate")
	})

	t.Run("rejects probabilities summing above one", func(t *testing.T) {
		g := New(0)
		require.NoError(t, g.AddNode(1))
		require.NoError(t, g.AddNode(2))
		require.NoError(t, g.AddEdge(0, 1, 0.7))
		require.NoError(t, g.AddEdge(0, 2, 0.7))

		var verr *ValidationError
		require.ErrorAs(t, g.Validate(), &verr)
	})

	t.Run("rejects negative probabilities", func(t *testing.T) {
		g := New(0)
		require.NoError(t, g.AddNode(1))
		require.NoError(t, g.AddEdge(0, 1, -0.1))

		var verr *ValidationError
		require.ErrorAs(t, g.Validate(), &verr)
	})

	t.Run("rejects a partition that misses nodes", func(t *testing.T) {
		g := New(0)
		require.NoError(t, g.AddNode(1))
		require.NoError(t, g.AddNode(2))
		require.NoError(t, g.AddEdge(0, 1, 0.5))
		require.NoError(t, g.AddEdge(0, 2, 0.5))
		require.NoError(t, g.AddAmbiguitySet([]int{1}))

		var verr *ValidationError
		require.ErrorAs(t, g.Validate(), &verr,
			"A non-empty partition must cover every non-root node")
	})

	t.Run("rejects overlapping partition blocks", func(t *testing.T) {
		g := New(0)
		require.NoError(t, g.AddNode(1))
		require.NoError(t, g.AddNode(2))
		require.NoError(t, g.AddAmbiguitySet([]int{1, 2}))
		require.NoError(t, g.AddAmbiguitySet([]int{2}))

		var verr *ValidationError
		require.ErrorAs(t, g.Validate(), &verr,
			"Partition blocks must be disjoint")
	})

	t.Run("accepts a disjoint covering partition", func(t *testing.T) {
		g := New(0)
		require.NoError(t, g.AddNode(1))
		require.NoError(t, g.AddNode(2))
		require.NoError(t, g.AddAmbiguitySet([]int{1}))
		require.NoError(t, g.AddAmbiguitySet([]int{2}))

		require.NoError(t, g.Validate())
	})
}

func TestNodeOrder(t *testing.T) {
	g := New("r")
	require.NoError(t, g.AddNode("b"))
	require.NoError(t, g.AddNode("a"))

	require.Equal(t, []string{"r", "b", "a"}, g.NodeOrder(),
		"Iteration order should follow insertion order, root first")
}
