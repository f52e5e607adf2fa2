// Package changeset implements the changeset model: a
// tagged sum type over revision, ordered, branch and tag changesets, with
// the two operations the graph machinery needs from every variant -
// create_graph_node and split.
package changeset

import (
	"fmt"

	"github.com/RoaringBitmap/roaring"

	"github.com/rcowham/cvs2git/graph"
	"github.com/rcowham/cvs2git/item"
)

// Kind tags which of the four variants a Changeset is. The iota order
// doubles as the tie-break class ordering: tag < branch < ordered <
// revision.
type Kind int

const (
	KindTag Kind = iota
	KindBranch
	KindOrdered
	KindRevision
)

func (k Kind) String() string {
	switch k {
	case KindTag:
		return "tag"
	case KindBranch:
		return "branch"
	case KindOrdered:
		return "ordered"
	default:
		return "revision"
	}
}

// Changeset is a set of item ids intended to become one target commit.
type Changeset struct {
	ID    item.ID
	Kind  Kind
	Items *roaring.Bitmap // set of item ids - homogeneous by construction

	// Symbol is populated for Branch/Tag changesets only.
	Symbol item.Symbol

	// Ordinal/Prev/Next are populated for Ordered changesets only, set by
	// the revision topological sort (package toposort).
	Ordinal int
	HasPrev bool
	PrevID  item.ID
	HasNext bool
	NextID  item.ID
}

// NewRevision builds a revision changeset over the given item ids.
func NewRevision(id item.ID, items *roaring.Bitmap) *Changeset {
	return &Changeset{ID: id, Kind: KindRevision, Items: items}
}

// NewBranch/NewTag build symbol changesets; all items must belong to the
// same symbol - enforced by callers in package builder, which only ever
// groups a contiguous single-symbol run.
func NewBranch(id item.ID, symbol item.Symbol, items *roaring.Bitmap) *Changeset {
	return &Changeset{ID: id, Kind: KindBranch, Symbol: symbol, Items: items}
}

func NewTag(id item.ID, symbol item.Symbol, items *roaring.Bitmap) *Changeset {
	return &Changeset{ID: id, Kind: KindTag, Symbol: symbol, Items: items}
}

// ToOrdered promotes a revision changeset to an ordered changeset,
// attaching its position in the revision chain.
func (c *Changeset) ToOrdered(ordinal int, prevID item.ID, hasPrev bool, nextID item.ID, hasNext bool) *Changeset {
	return &Changeset{
		ID: c.ID, Kind: KindOrdered, Items: c.Items,
		Ordinal: ordinal, PrevID: prevID, HasPrev: hasPrev, NextID: nextID, HasNext: hasNext,
	}
}

// ItemLookup resolves item ids to their underlying records - satisfied by
// package store's ItemStore (kept as an interface here so changeset does
// not need to import store).
type ItemLookup interface {
	Revision(id item.ID) (item.Revision, bool)
	Symbol(id item.ID) (item.SymbolItem, bool)
}

// ChangesetOf maps an item id to the changeset id it currently belongs to.
type ChangesetOf func(itemID item.ID) (item.ID, bool)

// CreateGraphNode builds the graph node for c:
//   - Revision changesets: aggregate timestamps into [t_min, t_max] and
//     translate every item-level pred/succ id into a changeset id.
//   - Ordered changesets: additionally link prev_id/next_id as a
//     pred/succ, and translate only the item-level *symbol* pred/succ
//     (the intra-chain ones are already captured by prev/next).
//   - Symbol changesets: empty time range, translate all item-level
//     pred/succ.
func (c *Changeset) CreateGraphNode(items ItemLookup, changesetOf ChangesetOf) (*graph.Node, error) {
	n := graph.NewNode(c.ID)

	switch c.Kind {
	case KindRevision, KindOrdered:
		first := true
		it := c.Items.Iterator()
		for it.HasNext() {
			id := item.ID(it.Next())
			rev, ok := items.Revision(id)
			if !ok {
				return nil, fmt.Errorf("changeset %d: revision item %d not found", c.ID, id)
			}
			if first || rev.Timestamp < n.TMin {
				n.TMin = rev.Timestamp
			}
			if first || rev.Timestamp > n.TMax {
				n.TMax = rev.Timestamp
			}
			first = false
			n.HasRange = true

			// For ordered changesets the intra-chain (same-file) deps are
			// already captured by prev/next; only the symbol-attachment
			// cross edges need translating here. For plain revision
			// changesets (pre-sort) every cross edge still needs it.
			predSet, succSet := rev.Pred, rev.Succ
			if c.Kind == KindOrdered {
				predSet = symbolOnly(rev.Pred, rev.BranchIDs, rev.TagIDs, items)
				succSet = symbolOnly(rev.Succ, rev.BranchIDs, rev.TagIDs, items)
			}
			if err := addCrossEdges(n, id, predSet, true, changesetOf); err != nil {
				return nil, err
			}
			if err := addCrossEdges(n, id, succSet, false, changesetOf); err != nil {
				return nil, err
			}
		}
		if c.Kind == KindOrdered {
			if c.HasPrev {
				n.Pred.Add(uint32(c.PrevID))
			}
			if c.HasNext {
				n.Succ.Add(uint32(c.NextID))
			}
		}

	case KindBranch, KindTag:
		it := c.Items.Iterator()
		for it.HasNext() {
			id := item.ID(it.Next())
			sym, ok := items.Symbol(id)
			if !ok {
				return nil, fmt.Errorf("changeset %d: symbol item %d not found", c.ID, id)
			}
			if err := addCrossEdges(n, id, sym.Pred, true, changesetOf); err != nil {
				return nil, err
			}
			if err := addCrossEdges(n, id, sym.Succ, false, changesetOf); err != nil {
				return nil, err
			}
		}
	}

	// A changeset is never its own predecessor/successor - self-loops can
	// arise from intra-changeset dependencies that the builder (package
	// builder) splits away before the graph is ever built from this data.
	n.Pred.Remove(uint32(c.ID))
	n.Succ.Remove(uint32(c.ID))
	return n, nil
}

// symbolOnly filters a revision's pred/succ id list down to the ones that
// are symbol items (appear in that revision's own BranchIDs/TagIDs), used
// once a revision changeset has become an ordered changeset and its
// intra-chain neighbor is already recorded via prev/next.
func symbolOnly(ids []item.ID, branchIDs, tagIDs []item.ID, items ItemLookup) []item.ID {
	symbolSet := make(map[item.ID]bool, len(branchIDs)+len(tagIDs))
	for _, id := range branchIDs {
		symbolSet[id] = true
	}
	for _, id := range tagIDs {
		symbolSet[id] = true
	}
	var out []item.ID
	for _, id := range ids {
		if symbolSet[id] {
			out = append(out, id)
			continue
		}
		if _, ok := items.Symbol(id); ok {
			out = append(out, id)
		}
	}
	return out
}

func addCrossEdges(n *graph.Node, selfID item.ID, ids []item.ID, isPred bool, changesetOf ChangesetOf) error {
	for _, other := range ids {
		if other == selfID {
			continue
		}
		otherChangeset, ok := changesetOf(other)
		if !ok {
			return fmt.Errorf("item %d has no changeset assignment", other)
		}
		if otherChangeset == n.ID {
			continue // intra-changeset edge; not a cross edge
		}
		if isPred {
			n.Pred.Add(uint32(otherChangeset))
		} else {
			n.Succ.Add(uint32(otherChangeset))
		}
	}
	return nil
}

// Split carves subset out of c into a brand-new changeset with id newID,
// sharing c's symbol (for symbol variants). The caller is responsible for
// removing subset's members from c.Items (or replacing c entirely) and
// for rewriting the item_id -> changeset_id table for the moved items.
func (c *Changeset) Split(newID item.ID, subset *roaring.Bitmap) *Changeset {
	nc := &Changeset{ID: newID, Kind: c.Kind, Items: subset, Symbol: c.Symbol}
	return nc
}

// Less implements the tie-break ordering used when a cycle breaker must
// choose among changesets on a cycle: by class (tag < branch < ordered
// < revision), then by symbol name (for symbol variants), then by id.
func Less(a, b *Changeset) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	if (a.Kind == KindBranch || a.Kind == KindTag) && a.Symbol.Name != b.Symbol.Name {
		return a.Symbol.Name < b.Symbol.Name
	}
	return a.ID < b.ID
}
