package cyclebreak

import (
	"fmt"
	"math"
	"sort"

	"github.com/RoaringBitmap/roaring"

	"github.com/rcowham/cvs2git/changeset"
	"github.com/rcowham/cvs2git/item"
)

// OrdinalOf resolves the ordinal assigned to an ordered revision
// changeset, used to check where a branch symbol's attachment/first-commit
// points fall in the linear chain.
type OrdinalOf func(changesetID item.ID) (int, bool)

// SymbolPlacer legalizes branch changesets so that every remaining one
// satisfies max(pred ordinals) < min(succ ordinals). Tag changesets are
// returned unchanged; they have no successors and therefore no
// placement constraint to violate.
type SymbolPlacer struct {
	Items   changeset.ItemLookup
	Assign  Assignments
	Ordinal OrdinalOf
	Keys    *item.KeyGenerator
}

type symbolPlacement struct {
	id         item.ID
	predOrd    int
	hasSucc    bool
	succOrd    int
}

// Legalize splits cs (a branch changeset) into one or more branch
// changesets, each satisfying the placement invariant, returning them in
// peel order (the first reuses cs.ID). Tag changesets pass through
// untouched.
func (p *SymbolPlacer) Legalize(cs *changeset.Changeset) ([]*changeset.Changeset, error) {
	if cs.Kind == changeset.KindTag {
		it := cs.Items.Iterator()
		for it.HasNext() {
			p.Assign[item.ID(it.Next())] = cs.ID
		}
		return []*changeset.Changeset{cs}, nil
	}

	placements, err := p.placements(cs)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(placements, func(i, j int) bool {
		if placements[i].predOrd != placements[j].predOrd {
			return placements[i].predOrd < placements[j].predOrd
		}
		return placements[i].id < placements[j].id
	})

	n := len(placements)

	var out []*changeset.Changeset
	start := 0
	first := true
	for start < n {
		// minSucc[l] is the minimum succ ordinal among placements[start:l],
		// i.e. restricted to the candidate segment starting at start - not
		// a global suffix minimum, which would compare against items past
		// the segment's own end and never find a legal split point.
		minSucc := make([]int, n+1)
		minSucc[start] = math.MaxInt64
		for i := start; i < n; i++ {
			s := math.MaxInt64
			if placements[i].hasSucc {
				s = placements[i].succOrd
			}
			minSucc[i+1] = min(minSucc[i], s)
		}

		bestL := -1
		for l := n; l > start; l-- {
			if placements[l-1].predOrd < minSucc[l] {
				bestL = l
				break
			}
		}
		if bestL < 0 {
			bestL = start + 1 // guarantee progress even in a pathological case
		}

		bits := roaring.New()
		for _, pl := range placements[start:bestL] {
			bits.Add(uint32(pl.id))
		}

		var segment *changeset.Changeset
		if first {
			segment = &changeset.Changeset{ID: cs.ID, Kind: cs.Kind, Symbol: cs.Symbol, Items: bits}
			first = false
		} else {
			segment = cs.Split(p.Keys.Next(), bits)
		}
		out = append(out, segment)

		it := bits.Iterator()
		for it.HasNext() {
			p.Assign[item.ID(it.Next())] = segment.ID
		}
		start = bestL
	}
	return out, nil
}

// placements resolves each symbol item's predecessor/successor ordinal.
// Each symbol item has exactly one revision predecessor and, for
// branches, possibly one revision successor.
func (p *SymbolPlacer) placements(cs *changeset.Changeset) ([]symbolPlacement, error) {
	var out []symbolPlacement
	it := cs.Items.Iterator()
	for it.HasNext() {
		id := item.ID(it.Next())
		sym, ok := p.Items.Symbol(id)
		if !ok {
			return nil, fmt.Errorf("cyclebreak: symbol item %d not found", id)
		}
		if len(sym.Pred) == 0 {
			return nil, fmt.Errorf("cyclebreak: symbol item %d has no predecessor revision", id)
		}
		predOrd, ok := p.ordinalOfRevision(sym.Pred[0])
		if !ok {
			return nil, fmt.Errorf("cyclebreak: predecessor %d of symbol item %d has no ordinal", sym.Pred[0], id)
		}
		pl := symbolPlacement{id: id, predOrd: predOrd}
		if len(sym.Succ) > 0 {
			succOrd, ok := p.ordinalOfRevision(sym.Succ[0])
			if ok {
				pl.hasSucc = true
				pl.succOrd = succOrd
			}
		}
		out = append(out, pl)
	}
	return out, nil
}

func (p *SymbolPlacer) ordinalOfRevision(revItemID item.ID) (int, bool) {
	csID, ok := p.Assign[revItemID]
	if !ok {
		return 0, false
	}
	return p.Ordinal(csID)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
