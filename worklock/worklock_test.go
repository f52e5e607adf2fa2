package worklock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireThenReleaseAllowsReacquire(t *testing.T) {
	dir := t.TempDir()
	lock, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, lock.Release())

	lock2, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, lock2.Release())
}

func TestAcquireTwiceFailsWithErrLocked(t *testing.T) {
	dir := t.TempDir()
	lock, err := Acquire(dir)
	require.NoError(t, err)
	defer lock.Release()

	_, err = Acquire(dir)
	assert.ErrorIs(t, err, ErrLocked)
}
