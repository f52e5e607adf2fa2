package store

import (
	"path/filepath"
	"testing"

	"github.com/RoaringBitmap/roaring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcowham/cvs2git/changeset"
	"github.com/rcowham/cvs2git/item"
)

func TestSaveLoadChangesetsRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "changesets.dat")

	bits := roaring.New()
	bits.Add(1)
	bits.Add(2)
	in := []*changeset.Changeset{changeset.NewRevision(10, bits)}

	require.NoError(t, SaveChangesets(path, in))
	out, err := LoadChangesets(path)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, item.ID(10), out[0].ID)
	assert.True(t, out[0].Items.Contains(1))
	assert.True(t, out[0].Items.Contains(2))
}

func TestSaveLoadAssignmentsRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "item-to-changeset.dat")

	in := map[item.ID]item.ID{1: 10, 2: 10, 3: 11}
	require.NoError(t, SaveAssignments(path, in))
	out, err := LoadAssignments(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
