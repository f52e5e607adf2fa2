package graph

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/emicklei/dot"
	"github.com/sirupsen/logrus"

	"github.com/rcowham/cvs2git/item"
)

// Graph is an in-memory mapping from changeset id to Node. Nodes live
// only in memory for the duration of one pass.
type Graph struct {
	logger *logrus.Logger
	nodes  map[item.ID]*Node
}

// NewGraph creates an empty graph.
func NewGraph(logger *logrus.Logger) *Graph {
	return &Graph{logger: logger, nodes: make(map[item.ID]*Node)}
}

// Add inserts a fully-built node. Its Pred/Succ sets are taken as given
// at insertion time.
func (g *Graph) Add(n *Node) {
	g.nodes[n.ID] = n
}

// Get returns the node for id, if present.
func (g *Graph) Get(id item.ID) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Len reports how many nodes remain.
func (g *Graph) Len() int { return len(g.nodes) }

// Remove deletes id's node and scrubs it from every surviving successor's
// predecessor set, so those successors can eventually become sources.
// Incoming edges to the removed node are left alone - it no longer
// exists, so there is nothing further to reach via them.
func (g *Graph) Remove(id item.ID) {
	n, ok := g.nodes[id]
	if !ok {
		return
	}
	delete(g.nodes, id)
	removed := uint32(id)
	n.Succ.Iterate(func(succID uint32) bool {
		if s, ok := g.nodes[item.ID(succID)]; ok {
			s.Pred.Remove(removed)
		}
		return true
	})
}

// idHeap is a min-heap over candidate source ids, ordered by
// (EffectiveTMax, id) - the same min-heap-over-a-projection idiom the
// external merge sort (package extsort) uses for k-way merging.
type idHeap struct {
	ids   []item.ID
	nodes map[item.ID]*Node
}

func (h idHeap) Len() int { return len(h.ids) }
func (h idHeap) Less(i, j int) bool {
	ni, nj := h.nodes[h.ids[i]], h.nodes[h.ids[j]]
	if ni == nil || nj == nil {
		return false
	}
	if ni.EffectiveTMax() != nj.EffectiveTMax() {
		return ni.EffectiveTMax() < nj.EffectiveTMax()
	}
	return h.ids[i] < h.ids[j]
}
func (h idHeap) Swap(i, j int) { h.ids[i], h.ids[j] = h.ids[j], h.ids[i] }
func (h *idHeap) Push(x interface{}) { h.ids = append(h.ids, x.(item.ID)) }
func (h *idHeap) Pop() interface{} {
	old := h.ids
	n := len(old)
	x := old[n-1]
	h.ids = old[:n-1]
	return x
}

func (g *Graph) buildReadyHeap() *idHeap {
	h := &idHeap{nodes: g.nodes}
	for id, n := range g.nodes {
		if n.Pred.IsEmpty() {
			h.ids = append(h.ids, id)
		}
	}
	heap.Init(h)
	return h
}

// SourceFunc is called once per consumed changeset, in commit order.
type SourceFunc func(id item.ID, n *Node) error

// CycleBreakFunc is invoked with the ordered list of changeset ids along
// a detected cycle (from the repeated node to the end of the descent) and
// must mutate the graph (via Remove/Add) to eliminate at least one cross
// edge on the cycle before returning.
type CycleBreakFunc func(cycle []item.ID) error

// Consume repeatedly removes and yields any node with no predecessors (a
// source), preferring earliest EffectiveTMax then smallest id among
// available sources. When no source exists but the graph is non-empty, it
// locates a cycle and invokes breakCycle; if that callback fails to
// reduce the graph (no new source appears and the node count does not
// shrink), Consume returns an error.
func (g *Graph) Consume(onSource SourceFunc, breakCycle CycleBreakFunc) error {
	ready := g.buildReadyHeap()
	for g.Len() > 0 {
		for ready.Len() > 0 {
			id := heap.Pop(ready).(item.ID)
			n, ok := g.nodes[id]
			if !ok || !n.Pred.IsEmpty() {
				continue // stale heap entry
			}
			if err := onSource(id, n); err != nil {
				return err
			}
			g.Remove(id)
			// Edge cleanup in Remove may have freed up new sources.
			for succID := range newlyReady(n, g) {
				heap.Push(ready, succID)
			}
		}
		if g.Len() == 0 {
			break
		}
		sizeBefore := g.Len()
		cycle := g.findCycle()
		if cycle == nil {
			return fmt.Errorf("graph: non-empty with no source and no cycle found (%d nodes remain)", g.Len())
		}
		if err := breakCycle(cycle); err != nil {
			return err
		}
		ready = g.buildReadyHeap()
		if ready.Len() == 0 && g.Len() >= sizeBefore {
			return fmt.Errorf("cycle breaker made no progress: %d nodes before, %d after, still no source", sizeBefore, g.Len())
		}
	}
	return nil
}

// newlyReady returns the successors of the just-removed node n that are
// now sources (empty Pred), so Consume can push them onto the ready heap
// without rescanning the whole graph.
func newlyReady(n *Node, g *Graph) map[item.ID]struct{} {
	out := make(map[item.ID]struct{})
	n.Succ.Iterate(func(succID uint32) bool {
		if s, ok := g.nodes[item.ID(succID)]; ok && s.Pred.IsEmpty() {
			out[item.ID(succID)] = struct{}{}
		}
		return true
	})
	return out
}

// findCycle runs a depth-first search from the smallest remaining node,
// following successor edges with a path-stack, until a node repeats.
// It returns the cycle as the path slice from the repeated node to the
// end.
func (g *Graph) findCycle() []item.ID {
	ids := make([]item.ID, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	visited := make(map[item.ID]bool, len(g.nodes))
	for _, start := range ids {
		if visited[start] {
			continue
		}
		var path []item.ID
		onPath := make(map[item.ID]int)
		cur := start
		for {
			if idx, ok := onPath[cur]; ok {
				return append([]item.ID(nil), path[idx:]...)
			}
			if visited[cur] {
				break
			}
			visited[cur] = true
			onPath[cur] = len(path)
			path = append(path, cur)

			n := g.nodes[cur]
			next, ok := smallestSucc(n, g)
			if !ok {
				break
			}
			cur = next
		}
	}
	return nil
}

// Dot renders the current graph as a graphviz dot document, one node per
// surviving changeset id and one edge per pred/succ pair. Used by
// cmd/graphdump and for ad-hoc debugging of a stuck Consume.
func (g *Graph) Dot() string {
	gv := dot.NewGraph(dot.Directed)
	nodes := make(map[item.ID]dot.Node, len(g.nodes))
	ids := make([]item.ID, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		n := g.nodes[id]
		label := fmt.Sprintf("%d", id)
		if n.HasRange {
			label = fmt.Sprintf("%d\\n[%d,%d]", id, n.TMin, n.TMax)
		}
		nodes[id] = gv.Node(label)
	}
	for _, id := range ids {
		n := g.nodes[id]
		n.Succ.Iterate(func(succID uint32) bool {
			if to, ok := nodes[item.ID(succID)]; ok {
				gv.Edge(nodes[id], to)
			}
			return true
		})
	}
	return gv.String()
}

func smallestSucc(n *Node, g *Graph) (item.ID, bool) {
	best := item.ID(0)
	found := false
	n.Succ.Iterate(func(succID uint32) bool {
		if _, ok := g.nodes[item.ID(succID)]; !ok {
			return true
		}
		if !found || item.ID(succID) < best {
			best = item.ID(succID)
			found = true
		}
		return true
	})
	return best, found
}
