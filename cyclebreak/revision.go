// Package cyclebreak implements the two cycle-elimination passes that
// run between changeset construction and the final topological sort:
// the revision-only cycle breaker and the full-graph symbol-placement
// legalizer.
package cyclebreak

import (
	"fmt"

	"github.com/RoaringBitmap/roaring"

	"github.com/rcowham/cvs2git/changeset"
	"github.com/rcowham/cvs2git/graph"
	"github.com/rcowham/cvs2git/item"
)

// Assignments is the item_id -> changeset_id table, mutated in place as
// changesets are split.
type Assignments map[item.ID]item.ID

// RevisionCycleBreaker drives graph.Consume's cycle-break callback for
// the revision-only subgraph. It owns the live pool of
// revision changesets and the current item assignment table, mutating
// both (and the graph) every time it splits a changeset.
type RevisionCycleBreaker struct {
	Graph      *graph.Graph
	Changesets map[item.ID]*changeset.Changeset
	Assign     Assignments
	Items      changeset.ItemLookup
	Keys       *item.KeyGenerator
}

// Break implements graph.CycleBreakFunc: pick the changeset on cycle
// with the best link-quality score, split it, and rewire the graph and
// assignment table so the caller's retry makes progress.
func (b *RevisionCycleBreaker) Break(cycle []item.ID) error {
	if len(cycle) == 0 {
		return fmt.Errorf("cyclebreak: empty cycle reported")
	}
	n := len(cycle)

	type candidate struct {
		idx        int
		id         item.ID
		a, bSet    *roaring.Bitmap
		intersect  int
		total      int
	}
	best := candidate{idx: -1}

	for i, id := range cycle {
		prev := cycle[(i-1+n)%n]
		next := cycle[(i+1)%n]
		cs, ok := b.Changesets[id]
		if !ok {
			return fmt.Errorf("cyclebreak: changeset %d on cycle not found", id)
		}
		a, bb, err := linkSets(cs, b.Items, b.Assign, prev, next)
		if err != nil {
			return err
		}
		inter := int(roaring.And(a, bb).GetCardinality())
		total := int(a.GetCardinality() + bb.GetCardinality())
		if best.idx < 0 || inter < best.intersect ||
			(inter == best.intersect && total < best.total) ||
			(inter == best.intersect && total == best.total && id < best.id) {
			best = candidate{idx: i, id: id, a: a, bSet: bb, intersect: inter, total: total}
		}
	}

	target := b.Changesets[best.id]
	aItems, bItems := best.a, best.bSet

	// The scoring only minimizes |A∩B|, it does not guarantee it is
	// empty. Fold any shared items into B so each item still ends up
	// in exactly one of the two new changesets.
	if inter := roaring.And(aItems, bItems); !inter.IsEmpty() {
		aItems = roaring.AndNot(aItems, inter)
	}

	unmatched := roaring.AndNot(target.Items, roaring.Or(aItems, bItems))
	// Items belonging to neither set attach to whichever half is
	// currently smaller, then by id.
	if aItems.GetCardinality() <= bItems.GetCardinality() {
		aItems = roaring.Or(aItems, unmatched)
	} else {
		bItems = roaring.Or(bItems, unmatched)
	}

	if aItems.IsEmpty() || bItems.IsEmpty() {
		return fmt.Errorf("cyclebreak: split of changeset %d made no progress (empty half)", target.ID)
	}

	newBID := b.Keys.Next()
	aCS := &changeset.Changeset{ID: target.ID, Kind: target.Kind, Items: aItems}
	bCS := target.Split(newBID, bItems)

	delete(b.Changesets, target.ID)
	b.Changesets[aCS.ID] = aCS
	b.Changesets[bCS.ID] = bCS

	assignBitmap(b.Assign, aItems, aCS.ID)
	assignBitmap(b.Assign, bItems, bCS.ID)

	b.Graph.Remove(target.ID)
	changesetOf := func(id item.ID) (item.ID, bool) { csID, ok := b.Assign[id]; return csID, ok }
	aNode, err := aCS.CreateGraphNode(b.Items, changesetOf)
	if err != nil {
		return err
	}
	bNode, err := bCS.CreateGraphNode(b.Items, changesetOf)
	if err != nil {
		return err
	}
	b.Graph.Add(aNode)
	b.Graph.Add(bNode)
	return nil
}

// linkSets computes A (items of cs whose item-level successor lands in
// the next-on-cycle changeset - the forward edge cs contributes to the
// cycle) and B (items whose item-level predecessor lands in the
// prev-on-cycle changeset - the backward edge cs receives from the
// cycle). A and B are read off opposite edge directions so they stay
// distinct even when prev and next are the same changeset, the
// two-node-cycle case where naively keying both sets off the same
// edge direction would make them identical and the split would never
// separate anything.
func linkSets(cs *changeset.Changeset, items changeset.ItemLookup, assign Assignments, prev, next item.ID) (*roaring.Bitmap, *roaring.Bitmap, error) {
	a, bSet := roaring.New(), roaring.New()
	it := cs.Items.Iterator()
	for it.HasNext() {
		id := item.ID(it.Next())
		rev, ok := items.Revision(id)
		if !ok {
			return nil, nil, fmt.Errorf("cyclebreak: item %d not found", id)
		}
		for _, succID := range rev.Succ {
			if succCS, ok := assign[succID]; ok && succCS == next {
				a.Add(uint32(id))
			}
		}
		for _, predID := range rev.Pred {
			if predCS, ok := assign[predID]; ok && predCS == prev {
				bSet.Add(uint32(id))
			}
		}
	}
	return a, bSet, nil
}

func assignBitmap(assign Assignments, bits *roaring.Bitmap, csID item.ID) {
	it := bits.Iterator()
	for it.HasNext() {
		assign[item.ID(it.Next())] = csID
	}
}
