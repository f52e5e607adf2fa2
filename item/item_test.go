package item

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetadataDigestDeterministic(t *testing.T) {
	m1 := Metadata{Author: "pallen", LogMessage: "add", ProjectID: "p1", BranchName: "MAIN"}
	m2 := Metadata{Author: "pallen", LogMessage: "add", ProjectID: "p1", BranchName: "MAIN"}
	assert.Equal(t, m1.Digest(), m2.Digest())
}

func TestMetadataDigestDistinguishesFields(t *testing.T) {
	base := Metadata{Author: "pallen", LogMessage: "add", ProjectID: "p1", BranchName: "MAIN"}
	other := Metadata{Author: "pallen", LogMessage: "add2", ProjectID: "p1", BranchName: "MAIN"}
	assert.NotEqual(t, base.Digest(), other.Digest())
}

func TestRecordAccessors(t *testing.T) {
	rev := NewRevisionRecord(Revision{ID: 5, Pred: []ID{1}, Succ: []ID{9}})
	assert.Equal(t, ID(5), rev.ID())
	assert.Equal(t, []ID{1}, rev.Pred())
	assert.Equal(t, []ID{9}, rev.Succ())

	sym := NewSymbolRecord(SymbolItem{ID: 7, Pred: []ID{2}, Succ: []ID{3}})
	assert.Equal(t, ID(7), sym.ID())
	assert.Equal(t, []ID{2}, sym.Pred())
	assert.Equal(t, []ID{3}, sym.Succ())
}

func TestKeyGeneratorMonotonic(t *testing.T) {
	g := NewKeyGenerator()
	a := g.Next()
	b := g.Next()
	assert.Equal(t, ID(1), a)
	assert.Equal(t, ID(2), b)

	g2 := NewKeyGeneratorFrom(100)
	assert.Equal(t, ID(101), g2.Next())
}
