package item

import "sync"

// KeyGenerator hands out stable, monotonically increasing ids, unique
// within a run. Splitting a changeset asks the generator for the id of
// the replacement half that doesn't reuse the original id - the second
// half of a split always receives a fresh id.
type KeyGenerator struct {
	mu   sync.Mutex
	next ID
}

// NewKeyGenerator starts numbering at 1 so 0 (item.NoID) stays reserved
// for "absent".
func NewKeyGenerator() *KeyGenerator {
	return &KeyGenerator{next: 1}
}

// NewKeyGeneratorFrom resumes numbering after the highest id already in
// use, e.g. when re-opening an item store built by an earlier pass.
func NewKeyGeneratorFrom(highest ID) *KeyGenerator {
	return &KeyGenerator{next: highest + 1}
}

func (g *KeyGenerator) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.next
	g.next++
	return id
}

func (g *KeyGenerator) Peek() ID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.next
}
