package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcowham/cvs2git/item"
)

func TestMetadataStorePutGet(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenMetadataStore(filepath.Join(dir, "meta.dat"))
	require.NoError(t, err)
	defer s.Close()

	m := item.Metadata{ID: 1, Author: "alice", LogMessage: "hello", ProjectID: "p", BranchName: "trunk"}
	require.NoError(t, s.Put(m))

	got, ok := s.Metadata(1)
	require.True(t, ok)
	assert.Equal(t, m, got)

	_, ok = s.Metadata(2)
	assert.False(t, ok)
}
