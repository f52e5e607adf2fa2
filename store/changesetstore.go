package store

import (
	"encoding/gob"
	"fmt"
	"os"

	"github.com/rcowham/cvs2git/changeset"
	"github.com/rcowham/cvs2git/item"
)

// SaveChangesets writes one full snapshot of the changeset store to
// path, keyed by changeset id. Unlike ItemStore, changesets are
// rewritten wholesale by every pass rather than
// appended to incrementally - "successive versions per pass" in the
// working-directory layout means one file per pass, not one growing file.
func SaveChangesets(path string, changesets []*changeset.Changeset) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("save changesets %s: %w", path, err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(changesets); err != nil {
		return fmt.Errorf("encode changesets %s: %w", path, err)
	}
	return nil
}

// LoadChangesets reads back a snapshot written by SaveChangesets.
func LoadChangesets(path string) ([]*changeset.Changeset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load changesets %s: %w", path, err)
	}
	defer f.Close()
	var out []*changeset.Changeset
	if err := gob.NewDecoder(f).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode changesets %s: %w", path, err)
	}
	return out, nil
}

// SaveAssignments writes the item-id -> changeset-id table.
func SaveAssignments(path string, assign map[item.ID]item.ID) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("save assignments %s: %w", path, err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(assign); err != nil {
		return fmt.Errorf("encode assignments %s: %w", path, err)
	}
	return nil
}

// LoadAssignments reads back a table written by SaveAssignments.
func LoadAssignments(path string) (map[item.ID]item.ID, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load assignments %s: %w", path, err)
	}
	defer f.Close()
	var out map[item.ID]item.ID
	if err := gob.NewDecoder(f).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode assignments %s: %w", path, err)
	}
	return out, nil
}
