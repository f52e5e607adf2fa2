package toposort

import (
	"testing"

	"github.com/RoaringBitmap/roaring"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcowham/cvs2git/changeset"
	"github.com/rcowham/cvs2git/graph"
	"github.com/rcowham/cvs2git/item"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func bitmap(ids ...item.ID) *roaring.Bitmap {
	b := roaring.New()
	for _, id := range ids {
		b.Add(uint32(id))
	}
	return b
}

func TestRevisionSortAssignsOrdinalsAndChaining(t *testing.T) {
	cs1 := changeset.NewRevision(1, bitmap(10))
	cs2 := changeset.NewRevision(2, bitmap(20))
	changesets := map[item.ID]*changeset.Changeset{1: cs1, 2: cs2}

	g := graph.NewGraph(testLogger())
	n1 := graph.NewNode(1)
	n1.HasRange, n1.TMax = true, 100
	n2 := graph.NewNode(2)
	n2.HasRange, n2.TMax = true, 200
	n1.Succ.Add(2)
	n2.Pred.Add(1)
	g.Add(n1)
	g.Add(n2)

	out, err := RevisionSort(g, changesets)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 0, out[0].Ordinal)
	assert.False(t, out[0].HasPrev)
	assert.True(t, out[0].HasNext)
	assert.Equal(t, item.ID(2), out[0].NextID)
	assert.Equal(t, 1, out[1].Ordinal)
	assert.True(t, out[1].HasPrev)
	assert.Equal(t, item.ID(1), out[1].PrevID)
}

func TestFinalSortMonotonizesTimestamps(t *testing.T) {
	g := graph.NewGraph(testLogger())
	a := graph.NewNode(1)
	a.HasRange, a.TMax = true, 100
	b := graph.NewNode(2)
	b.HasRange, b.TMax = true, 100 // tie with a - must strictly increase
	c := graph.NewNode(3)          // no range (symbol changeset)
	a.Succ.Add(2)
	b.Pred.Add(1)
	b.Succ.Add(3)
	c.Pred.Add(2)
	g.Add(a)
	g.Add(b)
	g.Add(c)

	out, err := FinalSort(g, nil)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i := 1; i < len(out); i++ {
		assert.Greater(t, out[i].Timestamp, out[i-1].Timestamp)
	}
}
