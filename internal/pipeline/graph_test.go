package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphConnectRejectsCycle(t *testing.T) {
	g := newGraph()
	g.addNode("a")
	g.addNode("b")
	g.addNode("c")

	require.NoError(t, g.connect("a", []string{"b"}))
	require.NoError(t, g.connect("b", []string{"c"}))

	err := g.connect("c", []string{"a"})
	require.Error(t, err)
	var cerr *GraphCycleError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, []string{"c", "a", "b", "c"}, cerr.Path)
	assert.Contains(t, cerr.Error(), "c -> a -> b -> c")
}

func TestGraphConnectRejectsSelfLoop(t *testing.T) {
	g := newGraph()
	g.addNode("a")

	var cerr *GraphCycleError
	require.ErrorAs(t, g.connect("a", []string{"a"}), &cerr)
}

func TestGraphRejectedConnectLeavesNoEdges(t *testing.T) {
	g := newGraph()
	g.addNode("a")
	g.addNode("b")
	require.NoError(t, g.connect("a", []string{"b"}))

	// One bad target rejects the whole set.
	require.Error(t, g.connect("b", []string{"a"}))
	assert.Empty(t, g.edges["b"])
}

func TestGraphOrderSourcesFirst(t *testing.T) {
	g := newGraph()
	for _, n := range []string{"sink", "mid", "src"} {
		g.addNode(n)
	}
	require.NoError(t, g.connect("src", []string{"mid"}))
	require.NoError(t, g.connect("mid", []string{"sink"}))

	assert.Equal(t, []string{"src", "mid", "sink"}, g.order())
}

func TestGraphOrderIsolatedKeepCreationOrder(t *testing.T) {
	g := newGraph()
	for _, n := range []string{"one", "two", "three"} {
		g.addNode(n)
	}
	assert.Equal(t, []string{"one", "two", "three"}, g.order())
}

func TestGraphFanOutOrder(t *testing.T) {
	g := newGraph()
	for _, n := range []string{"src", "left", "right"} {
		g.addNode(n)
	}
	require.NoError(t, g.connect("src", []string{"left", "right"}))

	order := g.order()
	require.Len(t, order, 3)
	assert.Equal(t, "src", order[0])
}
