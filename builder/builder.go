// Package builder implements the initial changeset pool: grouping the
// sorted revision and symbol summaries into revision and symbol
// changesets, and splitting any revision changeset that straddles both
// ends of an internal dependency so that no changeset produced here
// can ever contain a cyclic pair of its own items.
package builder

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring"

	"github.com/rcowham/cvs2git/changeset"
	"github.com/rcowham/cvs2git/extsort"
	"github.com/rcowham/cvs2git/item"
)

// Assignments accumulates the item_id -> changeset_id table built up
// across the grouping and splitting stages.
type Assignments map[item.ID]item.ID

// BuildRevisionChangesets reads a sorted revision summary (package
// extsort) and emits one changeset whenever the metadata id changes or
// the timestamp gap from the previous line exceeds window.
func BuildRevisionChangesets(r io.Reader, keys *item.KeyGenerator, window time.Duration) ([]*changeset.Changeset, Assignments, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		out     []*changeset.Changeset
		assign  = make(Assignments)
		cur     *roaring.Bitmap
		curMeta item.ID
		curTS   int64
		haveCur bool
	)
	windowSecs := int64(window / time.Second)

	flush := func() {
		if cur == nil {
			return
		}
		id := keys.Next()
		cs := changeset.NewRevision(id, cur)
		it := cur.Iterator()
		for it.HasNext() {
			assign[item.ID(it.Next())] = id
		}
		out = append(out, cs)
		cur = nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		metaID, ts, itemID, err := extsort.ParseRevisionSummaryLine(line)
		if err != nil {
			return nil, nil, fmt.Errorf("build revision changesets: %w", err)
		}
		newGroup := !haveCur || metaID != curMeta || ts-curTS > windowSecs
		if newGroup {
			flush()
			cur = roaring.New()
			curMeta = metaID
		}
		cur.Add(uint32(itemID))
		curTS = ts
		haveCur = true
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("build revision changesets: %w", err)
	}
	flush()
	return out, assign, nil
}

// SymbolLookup resolves a symbol id to its name/kind, needed to classify
// each contiguous run as a branch or tag changeset.
type SymbolLookup func(symbolID item.ID) (item.Symbol, bool)

// BuildSymbolChangesets reads a sorted symbol summary and emits one
// changeset per contiguous run sharing a symbol id.
func BuildSymbolChangesets(r io.Reader, keys *item.KeyGenerator, lookup SymbolLookup) ([]*changeset.Changeset, Assignments, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		out       []*changeset.Changeset
		assign    = make(Assignments)
		cur       *roaring.Bitmap
		curSymbol item.ID
		haveCur   bool
	)

	flush := func() error {
		if cur == nil {
			return nil
		}
		sym, ok := lookup(curSymbol)
		if !ok {
			return fmt.Errorf("build symbol changesets: unknown symbol %d", curSymbol)
		}
		id := keys.Next()
		var cs *changeset.Changeset
		if sym.Kind == item.SymbolTag {
			cs = changeset.NewTag(id, sym, cur)
		} else {
			cs = changeset.NewBranch(id, sym, cur)
		}
		it := cur.Iterator()
		for it.HasNext() {
			assign[item.ID(it.Next())] = id
		}
		out = append(out, cs)
		cur = nil
		return nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		symID, itemID, err := extsort.ParseSymbolSummaryLine(line)
		if err != nil {
			return nil, nil, fmt.Errorf("build symbol changesets: %w", err)
		}
		if !haveCur || symID != curSymbol {
			if err := flush(); err != nil {
				return nil, nil, err
			}
			cur = roaring.New()
			curSymbol = symID
		}
		cur.Add(uint32(itemID))
		haveCur = true
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("build symbol changesets: %w", err)
	}
	if err := flush(); err != nil {
		return nil, nil, err
	}
	return out, assign, nil
}

// orderedItem is one item laid out along the splitter's sort key:
// (timestamp, file path, revision number lexicographic-by-integer-
// components, id).
type orderedItem struct {
	id        item.ID
	timestamp int64
	path      string
	revNum    string
}

// compareRevNum orders two dotted revision numbers ("1.4.2.1") by
// comparing their integer components left to right; a shorter prefix
// sorts first when all shared components are equal.
func compareRevNum(a, b string) int {
	pa, pb := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(pa) && i < len(pb); i++ {
		na, _ := strconv.Atoi(pa[i])
		nb, _ := strconv.Atoi(pb[i])
		if na != nb {
			if na < nb {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(pa) < len(pb):
		return -1
	case len(pa) > len(pb):
		return 1
	default:
		return 0
	}
}

// SplitIntraDependencies splits cs, recursively, until no changeset it
// produces contains both ends of a pred/succ pair among its own items.
// The first changeset returned always reuses cs.ID;
// every other one is freshly minted from keys. A changeset with no
// internal dependency is returned unchanged as a single-element slice
// (property 9, split-merge idempotence).
func SplitIntraDependencies(cs *changeset.Changeset, items changeset.ItemLookup, keys *item.KeyGenerator) ([]*changeset.Changeset, Assignments, error) {
	assign := make(Assignments)
	out, err := splitRec(cs, items, keys, assign)
	if err != nil {
		return nil, nil, err
	}
	return out, assign, nil
}

func splitRec(cs *changeset.Changeset, items changeset.ItemLookup, keys *item.KeyGenerator, assign Assignments) ([]*changeset.Changeset, error) {
	ordered, indexOf, err := orderItems(cs, items)
	if err != nil {
		return nil, err
	}
	pairs, err := internalPairs(cs, items, indexOf)
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		it := cs.Items.Iterator()
		for it.HasNext() {
			assign[item.ID(it.Next())] = cs.ID
		}
		return []*changeset.Changeset{cs}, nil
	}

	n := len(ordered)
	diff := make([]int, n)
	for _, p := range pairs {
		lo, hi := p.lo, p.hi
		diff[lo]++
		if hi < n {
			diff[hi]--
		}
	}
	broken := make([]int, n)
	running := 0
	for k := 0; k < n; k++ {
		running += diff[k]
		broken[k] = running
	}

	bestK, bestCount, bestGap := -1, -1, int64(-1)
	for k := 0; k < n-1; k++ {
		gap := ordered[k+1].timestamp - ordered[k].timestamp
		if gap < 0 {
			gap = -gap
		}
		if broken[k] > bestCount || (broken[k] == bestCount && gap < bestGap) {
			bestK, bestCount, bestGap = k, broken[k], gap
		}
	}
	if bestK < 0 {
		// No boundary actually severs a dependency (can happen only if
		// every pair's lo==hi, i.e. a self edge) - treat as no-op.
		it := cs.Items.Iterator()
		for it.HasNext() {
			assign[item.ID(it.Next())] = cs.ID
		}
		return []*changeset.Changeset{cs}, nil
	}

	firstBits := roaring.New()
	secondBits := roaring.New()
	for i := 0; i <= bestK; i++ {
		firstBits.Add(uint32(ordered[i].id))
	}
	for i := bestK + 1; i < n; i++ {
		secondBits.Add(uint32(ordered[i].id))
	}

	first := &changeset.Changeset{ID: cs.ID, Kind: cs.Kind, Items: firstBits, Symbol: cs.Symbol}
	second := cs.Split(keys.Next(), secondBits)

	firstOut, err := splitRec(first, items, keys, assign)
	if err != nil {
		return nil, err
	}
	secondOut, err := splitRec(second, items, keys, assign)
	if err != nil {
		return nil, err
	}
	return append(firstOut, secondOut...), nil
}

func orderItems(cs *changeset.Changeset, items changeset.ItemLookup) ([]orderedItem, map[item.ID]int, error) {
	ordered := make([]orderedItem, 0, int(cs.Items.GetCardinality()))
	it := cs.Items.Iterator()
	for it.HasNext() {
		id := item.ID(it.Next())
		rev, ok := items.Revision(id)
		if !ok {
			return nil, nil, fmt.Errorf("split changeset %d: item %d not found", cs.ID, id)
		}
		ordered = append(ordered, orderedItem{id: id, timestamp: rev.Timestamp, path: rev.Path, revNum: rev.RevNum})
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.timestamp != b.timestamp {
			return a.timestamp < b.timestamp
		}
		if a.path != b.path {
			return a.path < b.path
		}
		if c := compareRevNum(a.revNum, b.revNum); c != 0 {
			return c < 0
		}
		return a.id < b.id
	})
	indexOf := make(map[item.ID]int, len(ordered))
	for i, o := range ordered {
		indexOf[o.id] = i
	}
	return ordered, indexOf, nil
}

type pair struct{ lo, hi int }

// internalPairs collects every (pred, succ) index pair where both
// endpoints belong to cs.
func internalPairs(cs *changeset.Changeset, items changeset.ItemLookup, indexOf map[item.ID]int) ([]pair, error) {
	var pairs []pair
	it := cs.Items.Iterator()
	for it.HasNext() {
		id := item.ID(it.Next())
		rev, ok := items.Revision(id)
		if !ok {
			return nil, fmt.Errorf("split changeset %d: item %d not found", cs.ID, id)
		}
		selfIdx := indexOf[id]
		for _, succID := range rev.Succ {
			succIdx, ok := indexOf[succID]
			if !ok {
				continue // successor outside this changeset - a cross edge, not internal
			}
			lo, hi := selfIdx, succIdx
			if lo > hi {
				lo, hi = hi, lo
			}
			pairs = append(pairs, pair{lo: lo, hi: hi})
		}
	}
	return pairs, nil
}
