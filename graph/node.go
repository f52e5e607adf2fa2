// Package graph implements the in-memory changeset graph: a mapping
// from changeset id to graph node, each node carrying a time range and
// predecessor/successor sets of other changeset ids. Each node's sets
// are whatever its builder put there: Graph.Add does not check them
// against other nodes, and Graph.Remove scrubs the removed id only from
// its successors' predecessor sets, not from its predecessors' successor
// sets.
package graph

import (
	"math"

	"github.com/RoaringBitmap/roaring"

	"github.com/rcowham/cvs2git/item"
)

// Node is one changeset's view in the graph: its time range (empty for
// pure symbol changesets) and its predecessor/successor changeset-id
// sets. A changeset is a set of item ids, and a node's pred/succ are
// sets of changeset ids; roaring bitmaps are a compact representation
// for both.
type Node struct {
	ID       item.ID
	HasRange bool
	TMin     int64
	TMax     int64
	Pred     *roaring.Bitmap
	Succ     *roaring.Bitmap
}

// NewNode creates an empty node for id with no time range and no edges.
func NewNode(id item.ID) *Node {
	return &Node{ID: id, Pred: roaring.New(), Succ: roaring.New()}
}

// EffectiveTMax is the key used to order nodes competing to be consumed
// next: prefer earliest t_max, break ties by id. Nodes with no time
// range (branch/tag changesets) sort first: their position carries no
// scheduling meaning of their own, and the final timestamper's
// monotonic clamp (max(t_max, prev+1)) keeps the emitted order
// consistent regardless of when they're drawn.
func (n *Node) EffectiveTMax() int64 {
	if !n.HasRange {
		return math.MinInt64
	}
	return n.TMax
}

func (n *Node) clone() *Node {
	return &Node{
		ID:       n.ID,
		HasRange: n.HasRange,
		TMin:     n.TMin,
		TMax:     n.TMax,
		Pred:     n.Pred.Clone(),
		Succ:     n.Succ.Clone(),
	}
}
