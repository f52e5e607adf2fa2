package graph

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcowham/cvs2git/item"
)

func newTestLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func edge(g *Graph, from, to item.ID) {
	fn, _ := g.Get(from)
	tn, _ := g.Get(to)
	fn.Succ.Add(uint32(to))
	tn.Pred.Add(uint32(from))
}

func TestConsumeLinearChainIsOrdered(t *testing.T) {
	g := NewGraph(newTestLogger())
	for i := item.ID(1); i <= 3; i++ {
		n := NewNode(i)
		n.HasRange = true
		n.TMax = int64(i) * 100
		g.Add(n)
	}
	edge(g, 1, 2)
	edge(g, 2, 3)

	var order []item.ID
	err := g.Consume(func(id item.ID, n *Node) error {
		order = append(order, id)
		return nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []item.ID{1, 2, 3}, order)
	assert.Equal(t, 0, g.Len())
}

func TestConsumePrefersEarliestTMax(t *testing.T) {
	g := NewGraph(newTestLogger())
	a := NewNode(1)
	a.HasRange, a.TMax = true, 500
	b := NewNode(2)
	b.HasRange, b.TMax = true, 100
	g.Add(a)
	g.Add(b)

	var order []item.ID
	err := g.Consume(func(id item.ID, n *Node) error {
		order = append(order, id)
		return nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []item.ID{2, 1}, order)
}

func TestConsumeDetectsAndBreaksCycle(t *testing.T) {
	g := NewGraph(newTestLogger())
	for i := item.ID(1); i <= 2; i++ {
		n := NewNode(i)
		n.HasRange = true
		n.TMax = int64(i) * 100
		g.Add(n)
	}
	edge(g, 1, 2)
	edge(g, 2, 1)

	broke := false
	err := g.Consume(func(id item.ID, n *Node) error {
		return nil
	}, func(cycle []item.ID) error {
		require.False(t, broke, "cycle breaker should only be needed once")
		broke = true
		// Break the cycle by removing the 2->1 edge: drop 1 from node 2's succ
		// and node 1's pred.
		n2, _ := g.Get(2)
		n1, _ := g.Get(1)
		n2.Succ.Remove(1)
		n1.Pred.Remove(2)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, broke)
	assert.Equal(t, 0, g.Len())
}

func TestConsumeCycleBreakerNoProgressErrors(t *testing.T) {
	g := NewGraph(newTestLogger())
	for i := item.ID(1); i <= 2; i++ {
		g.Add(NewNode(i))
	}
	edge(g, 1, 2)
	edge(g, 2, 1)

	err := g.Consume(func(id item.ID, n *Node) error {
		return nil
	}, func(cycle []item.ID) error {
		return nil // does nothing - must be reported as regress
	})
	assert.Error(t, err)
}

func TestRemoveScrubsSuccessorPredecessorSet(t *testing.T) {
	g := NewGraph(newTestLogger())
	g.Add(NewNode(1))
	g.Add(NewNode(2))
	edge(g, 1, 2)

	g.Remove(1)
	n2, ok := g.Get(2)
	require.True(t, ok)
	assert.True(t, n2.Pred.IsEmpty())
}
