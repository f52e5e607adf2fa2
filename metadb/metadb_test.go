package metadb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcowham/cvs2git/item"
)

func TestFileDatabasePutGet(t *testing.T) {
	db, err := OpenFileDatabase(filepath.Join(t.TempDir(), "files.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Put(1, FileRecord{Path: "//depot/main/f.txt", Mode: 0644}))
	fr, ok := db.Get(1)
	require.True(t, ok)
	assert.Equal(t, "//depot/main/f.txt", fr.Path)

	_, ok = db.Get(2)
	assert.False(t, ok)
}

func TestSymbolDatabasePutGet(t *testing.T) {
	db, err := OpenSymbolDatabase(filepath.Join(t.TempDir(), "symbols.db"))
	require.NoError(t, err)
	defer db.Close()

	sym := item.Symbol{ID: 7, Name: "REL1_0", Kind: item.SymbolBranch}
	require.NoError(t, db.Put(sym))

	got, ok := db.Get(7)
	require.True(t, ok)
	assert.Equal(t, sym, got)
}
