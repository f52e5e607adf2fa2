// Package toposort implements the two topological-sort passes that
// bracket the cycle breakers: the revision-only sort that assigns
// ordinals to an acyclic revision chain, and the final full-graph sort
// that assigns strictly increasing commit timestamps.
package toposort

import (
	"fmt"

	"github.com/rcowham/cvs2git/changeset"
	"github.com/rcowham/cvs2git/graph"
	"github.com/rcowham/cvs2git/item"
)

// OrderedResult is one revision changeset's position in the chain,
// produced by RevisionSort.
type OrderedResult struct {
	Changeset *changeset.Changeset // promoted via ToOrdered
	Ordinal   int
}

// RevisionSort consumes the (now-acyclic) revision subgraph in commit
// order and promotes each revision changeset to an ordered changeset
// with ordinal, prev_id and next_id attached. Symbol changesets are not
// part of g at this stage and are therefore untouched by this pass; the
// caller copies them through unchanged.
func RevisionSort(g *graph.Graph, changesets map[item.ID]*changeset.Changeset) ([]*changeset.Changeset, error) {
	var order []item.ID
	err := g.Consume(func(id item.ID, n *graph.Node) error {
		order = append(order, id)
		return nil
	}, func(cycle []item.ID) error {
		return fmt.Errorf("toposort: revision subgraph still has a cycle at %v; cycle breaker (package cyclebreak) must run first", cycle)
	})
	if err != nil {
		return nil, err
	}

	out := make([]*changeset.Changeset, len(order))
	for i, id := range order {
		cs, ok := changesets[id]
		if !ok {
			return nil, fmt.Errorf("toposort: changeset %d in consume order not found", id)
		}
		var prevID, nextID item.ID
		hasPrev, hasNext := i > 0, i < len(order)-1
		if hasPrev {
			prevID = order[i-1]
		}
		if hasNext {
			nextID = order[i+1]
		}
		out[i] = cs.ToOrdered(i, prevID, hasPrev, nextID, hasNext)
	}
	return out, nil
}

// TimestampedResult is one changeset's assigned commit timestamp, in
// final commit order.
type TimestampedResult struct {
	ID        item.ID
	Timestamp int64
}

// FinalSort consumes the full graph (revision chain plus legalized
// symbol changesets) and assigns each yielded changeset a commit
// timestamp equal to max(t_max, previous+1), so the sequence is strictly
// increasing even when source timestamps tie or regress.
func FinalSort(g *graph.Graph, breakCycle graph.CycleBreakFunc) ([]TimestampedResult, error) {
	var out []TimestampedResult
	var previous int64
	err := g.Consume(func(id item.ID, n *graph.Node) error {
		ts := n.EffectiveTMax()
		if ts < previous+1 {
			ts = previous + 1
		}
		out = append(out, TimestampedResult{ID: id, Timestamp: ts})
		previous = ts
		return nil
	}, breakCycle)
	if err != nil {
		return nil, err
	}
	return out, nil
}
