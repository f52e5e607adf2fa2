package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcowham/cvs2git/item"
)

func TestItemStorePutGetDelete(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenItemStore(filepath.Join(dir, "items.dat"))
	require.NoError(t, err)
	defer s.Close()

	rev := item.NewRevisionRecord(item.Revision{ID: 1, Path: "a.txt", Timestamp: 100})
	require.NoError(t, s.Put(1, rev))

	got, err := s.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", got.Revision.Path)

	_, err = s.Get(2)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Delete(1))
	_, err = s.Get(1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestItemStoreIterOrdersById(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenItemStore(filepath.Join(dir, "items.dat"))
	require.NoError(t, err)
	defer s.Close()

	for _, id := range []item.ID{3, 1, 2} {
		require.NoError(t, s.Put(id, item.NewRevisionRecord(item.Revision{ID: id})))
	}

	var seen []item.ID
	require.NoError(t, s.Iter(func(id item.ID, rec item.Record) error {
		seen = append(seen, id)
		return nil
	}))
	assert.Equal(t, []item.ID{1, 2, 3}, seen)
}

func TestItemStoreReopenSharesData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "items.dat")
	s, err := OpenItemStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(1, item.NewRevisionRecord(item.Revision{ID: 1, Path: "x"})))
	require.NoError(t, s.Close())

	s2, err := OpenItemStore(path)
	require.NoError(t, err)
	defer s2.Close()
	got, err := s2.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "x", got.Revision.Path)
}

func TestRecordTableAbsentIsZeroOffset(t *testing.T) {
	dir := t.TempDir()
	tbl, err := OpenRecordTable(filepath.Join(dir, "t.idx"))
	require.NoError(t, err)
	defer tbl.Close()

	_, ok, err := tbl.Get(42)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, tbl.Put(42, 1024))
	off, ok, err := tbl.Get(42)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 1024, off)

	require.NoError(t, tbl.Delete(42))
	_, ok, err = tbl.Get(42)
	require.NoError(t, err)
	assert.False(t, ok)
}
