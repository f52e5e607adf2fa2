package changeset

import (
	"testing"

	"github.com/RoaringBitmap/roaring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcowham/cvs2git/item"
)

type fakeItems struct {
	revisions map[item.ID]item.Revision
	symbols   map[item.ID]item.SymbolItem
}

func (f fakeItems) Revision(id item.ID) (item.Revision, bool) { r, ok := f.revisions[id]; return r, ok }
func (f fakeItems) Symbol(id item.ID) (item.SymbolItem, bool) { s, ok := f.symbols[id]; return s, ok }

func bitmap(ids ...item.ID) *roaring.Bitmap {
	b := roaring.New()
	for _, id := range ids {
		b.Add(uint32(id))
	}
	return b
}

func TestCreateGraphNodeAggregatesTimeRange(t *testing.T) {
	items := fakeItems{revisions: map[item.ID]item.Revision{
		1: {ID: 1, Timestamp: 100},
		2: {ID: 2, Timestamp: 300},
	}}
	changesetOf := func(id item.ID) (item.ID, bool) { return 42, true }
	cs := NewRevision(42, bitmap(1, 2))

	n, err := cs.CreateGraphNode(items, changesetOf)
	require.NoError(t, err)
	assert.True(t, n.HasRange)
	assert.EqualValues(t, 100, n.TMin)
	assert.EqualValues(t, 300, n.TMax)
	assert.True(t, n.Pred.IsEmpty())
	assert.True(t, n.Succ.IsEmpty())
}

func TestCreateGraphNodeTranslatesCrossEdges(t *testing.T) {
	// item 1 (in changeset 10) has successor item 2 (in changeset 20).
	items := fakeItems{revisions: map[item.ID]item.Revision{
		1: {ID: 1, Timestamp: 100, Succ: []item.ID{2}},
		2: {ID: 2, Timestamp: 200, Pred: []item.ID{1}},
	}}
	changesetOf := func(id item.ID) (item.ID, bool) {
		if id == 1 {
			return 10, true
		}
		return 20, true
	}
	cs := NewRevision(10, bitmap(1))
	n, err := cs.CreateGraphNode(items, changesetOf)
	require.NoError(t, err)
	assert.True(t, n.Succ.Contains(20))
	assert.True(t, n.Pred.IsEmpty())
}

func TestCreateGraphNodeSkipsIntraChangesetEdges(t *testing.T) {
	items := fakeItems{revisions: map[item.ID]item.Revision{
		1: {ID: 1, Timestamp: 100, Succ: []item.ID{2}},
		2: {ID: 2, Timestamp: 200, Pred: []item.ID{1}},
	}}
	changesetOf := func(id item.ID) (item.ID, bool) { return 10, true } // both in same changeset
	cs := NewRevision(10, bitmap(1, 2))
	n, err := cs.CreateGraphNode(items, changesetOf)
	require.NoError(t, err)
	assert.True(t, n.Pred.IsEmpty())
	assert.True(t, n.Succ.IsEmpty())
}

func TestOrderedChangesetUsesPrevNextAsEdges(t *testing.T) {
	items := fakeItems{revisions: map[item.ID]item.Revision{1: {ID: 1, Timestamp: 100}}}
	changesetOf := func(id item.ID) (item.ID, bool) { return 10, true }
	base := NewRevision(10, bitmap(1))
	ordered := base.ToOrdered(3, 9, true, 11, true)

	n, err := ordered.CreateGraphNode(items, changesetOf)
	require.NoError(t, err)
	assert.True(t, n.Pred.Contains(9))
	assert.True(t, n.Succ.Contains(11))
}

func TestSplitSharesSymbol(t *testing.T) {
	sym := item.Symbol{ID: 1, Name: "REL1", Kind: item.SymbolBranch}
	cs := NewBranch(1, sym, bitmap(1, 2, 3))
	half := cs.Split(2, bitmap(2))
	assert.Equal(t, KindBranch, half.Kind)
	assert.Equal(t, sym, half.Symbol)
	assert.True(t, half.Items.Contains(2))
	assert.False(t, half.Items.Contains(1))
}

func TestLessOrdersByClassThenSymbolThenID(t *testing.T) {
	tag := &Changeset{Kind: KindTag, ID: 5}
	branch := &Changeset{Kind: KindBranch, ID: 1}
	ordered := &Changeset{Kind: KindOrdered, ID: 1}
	revision := &Changeset{Kind: KindRevision, ID: 1}
	assert.True(t, Less(tag, branch))
	assert.True(t, Less(branch, ordered))
	assert.True(t, Less(ordered, revision))

	a := &Changeset{Kind: KindBranch, ID: 2, Symbol: item.Symbol{Name: "A"}}
	b := &Changeset{Kind: KindBranch, ID: 1, Symbol: item.Symbol{Name: "B"}}
	assert.True(t, Less(a, b))
}
