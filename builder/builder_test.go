package builder

import (
	"strings"
	"testing"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcowham/cvs2git/changeset"
	"github.com/rcowham/cvs2git/extsort"
	"github.com/rcowham/cvs2git/item"
)

func bitmap(ids ...item.ID) *roaring.Bitmap {
	b := roaring.New()
	for _, id := range ids {
		b.Add(uint32(id))
	}
	return b
}

type fakeItems struct {
	revisions map[item.ID]item.Revision
	symbols   map[item.ID]item.SymbolItem
}

func (f fakeItems) Revision(id item.ID) (item.Revision, bool) { r, ok := f.revisions[id]; return r, ok }
func (f fakeItems) Symbol(id item.ID) (item.SymbolItem, bool) { s, ok := f.symbols[id]; return s, ok }

func TestBuildRevisionChangesetsGroupsByMetadataAndWindow(t *testing.T) {
	// metadata 1: t=100,200,300 (within window); metadata 2: t=1000
	lines := []string{
		extsort.RevisionSummaryLine(1, 100, 10),
		extsort.RevisionSummaryLine(1, 200, 11),
		extsort.RevisionSummaryLine(1, 300, 12),
		extsort.RevisionSummaryLine(2, 1000, 13),
	}
	r := strings.NewReader(strings.Join(lines, "\n") + "\n")
	keys := item.NewKeyGenerator()

	out, assign, err := BuildRevisionChangesets(r, keys, 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, assign[10], out[0].ID)
	assert.Equal(t, assign[12], out[0].ID)
	assert.Equal(t, assign[13], out[1].ID)
}

func TestBuildRevisionChangesetsSplitsOnTimestampGap(t *testing.T) {
	lines := []string{
		extsort.RevisionSummaryLine(1, 100, 10),
		extsort.RevisionSummaryLine(1, 100000, 11), // gap exceeds 5m window
	}
	r := strings.NewReader(strings.Join(lines, "\n") + "\n")
	keys := item.NewKeyGenerator()

	out, assign, err := BuildRevisionChangesets(r, keys, 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.NotEqual(t, assign[10], assign[11])
}

func TestBuildSymbolChangesetsGroupsContiguousRuns(t *testing.T) {
	lines := []string{
		extsort.SymbolSummaryLine(1, 20),
		extsort.SymbolSummaryLine(1, 21),
		extsort.SymbolSummaryLine(2, 22),
	}
	r := strings.NewReader(strings.Join(lines, "\n") + "\n")
	keys := item.NewKeyGenerator()
	lookup := func(id item.ID) (item.Symbol, bool) {
		if id == 1 {
			return item.Symbol{ID: 1, Name: "REL1", Kind: item.SymbolBranch}, true
		}
		return item.Symbol{ID: 2, Name: "TAG1", Kind: item.SymbolTag}, true
	}

	out, assign, err := BuildSymbolChangesets(r, keys, lookup)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, changeset.KindBranch, out[0].Kind)
	assert.Equal(t, changeset.KindTag, out[1].Kind)
	assert.Equal(t, assign[20], out[0].ID)
	assert.Equal(t, assign[22], out[1].ID)
}

func TestSplitIntraDependenciesNoOpWhenAcyclic(t *testing.T) {
	items := fakeItems{revisions: map[item.ID]item.Revision{
		1: {ID: 1, Timestamp: 100, Path: "a"},
		2: {ID: 2, Timestamp: 200, Path: "b"},
	}}
	bits := bitmap(1, 2)
	cs := changeset.NewRevision(5, bits)
	keys := item.NewKeyGenerator()

	out, assign, err := SplitIntraDependencies(cs, items, keys)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, item.ID(5), out[0].ID)
	assert.Equal(t, item.ID(5), assign[1])
	assert.Equal(t, item.ID(5), assign[2])
}

func TestSplitIntraDependenciesSeparatesPredSucc(t *testing.T) {
	// item 1 is a predecessor of item 2, both land in the same initial
	// changeset - the splitter must produce two changesets, first
	// containing 1 and second containing 2, with the original id kept by
	// whichever half comes first in sort order.
	items := fakeItems{revisions: map[item.ID]item.Revision{
		1: {ID: 1, Timestamp: 100, Path: "a", Succ: []item.ID{2}},
		2: {ID: 2, Timestamp: 200, Path: "a", Pred: []item.ID{1}},
	}}
	bits := bitmap(1, 2)
	cs := changeset.NewRevision(5, bits)
	keys := item.NewKeyGenerator()

	out, assign, err := SplitIntraDependencies(cs, items, keys)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.NotEqual(t, assign[1], assign[2])
	assert.Equal(t, item.ID(5), out[0].ID)
}
