// Package worklock guards a working directory against concurrent runs:
// a lock directory, created at start and removed at end, prevents
// concurrent runs against the same working directory. Its presence on
// startup is a fatal error unless the user removes it manually.
package worklock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrLocked is returned by Acquire when the lock directory already
// exists.
var ErrLocked = errors.New("worklock: lock directory already exists; remove it manually if no other run is active")

// Lock is a held lock on one working directory.
type Lock struct {
	path string
}

// Acquire creates the lock directory under workingDir, failing with
// ErrLocked if a previous run's lock is still present.
func Acquire(workingDir string) (*Lock, error) {
	path := filepath.Join(workingDir, "cvs2git.lock")
	if err := os.Mkdir(path, 0755); err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		return nil, fmt.Errorf("worklock: create lock %s: %w", path, err)
	}
	return &Lock{path: path}, nil
}

// Release removes the lock directory, clearing the way for the next run.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil {
		return fmt.Errorf("worklock: release lock %s: %w", l.path, err)
	}
	return nil
}
