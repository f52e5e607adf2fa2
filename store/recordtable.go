package store

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/rcowham/cvs2git/item"
)

// recordWidth is the fixed width, in bytes, of one id->offset entry.
// Offset 0 is reserved to mean "absent/deleted".
const recordWidth = 8

// RecordTable is a fixed-width integer->integer table on disk, mapping
// item (or changeset) id to byte offset within a companion data file.
// It never shrinks: delete() zeroes an entry rather than reclaiming space,
// matching the append-only philosophy of the data file it indexes.
type RecordTable struct {
	path string
	f    *os.File
}

// OpenRecordTable opens (creating if necessary) the table at path.
func OpenRecordTable(path string) (*RecordTable, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open record table %s: %w", path, err)
	}
	return &RecordTable{path: path, f: f}, nil
}

func (t *RecordTable) Close() error {
	return t.f.Close()
}

func (t *RecordTable) offsetFor(id item.ID) int64 {
	return int64(id) * recordWidth
}

// Put records the byte offset at which id's serialized record begins.
func (t *RecordTable) Put(id item.ID, offset int64) error {
	buf := make([]byte, recordWidth)
	binary.BigEndian.PutUint64(buf, uint64(offset))
	if _, err := t.f.WriteAt(buf, t.offsetFor(id)); err != nil {
		return fmt.Errorf("write record table entry %d: %w", id, err)
	}
	return nil
}

// Get returns the offset for id, or (0, false) if absent/deleted.
func (t *RecordTable) Get(id item.ID) (int64, bool, error) {
	buf := make([]byte, recordWidth)
	n, err := t.f.ReadAt(buf, t.offsetFor(id))
	if n < recordWidth {
		// Short/empty read past current EOF means the id was never written.
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read record table entry %d: %w", id, err)
	}
	offset := int64(binary.BigEndian.Uint64(buf))
	if offset == 0 {
		return 0, false, nil
	}
	return offset, true, nil
}

// Delete sets id's offset to 0 (absent). Space is not reclaimed.
func (t *RecordTable) Delete(id item.ID) error {
	return t.Put(id, 0)
}

// MaxID returns the highest id with a non-zero offset, and whether the
// table holds any live entries at all. Used to resume a KeyGenerator
// across passes.
func (t *RecordTable) MaxID() (item.ID, bool, error) {
	info, err := t.f.Stat()
	if err != nil {
		return 0, false, err
	}
	n := info.Size() / recordWidth
	var max item.ID
	found := false
	buf := make([]byte, recordWidth)
	for i := int64(0); i < n; i++ {
		if _, err := t.f.ReadAt(buf, i*recordWidth); err != nil {
			return 0, false, err
		}
		if binary.BigEndian.Uint64(buf) != 0 {
			max = item.ID(i)
			found = true
		}
	}
	return max, found, nil
}

// Iter calls fn for every id with a non-zero offset, in ascending id order.
func (t *RecordTable) Iter(fn func(id item.ID, offset int64) error) error {
	info, err := t.f.Stat()
	if err != nil {
		return err
	}
	n := info.Size() / recordWidth
	buf := make([]byte, recordWidth)
	for i := int64(0); i < n; i++ {
		if _, err := t.f.ReadAt(buf, i*recordWidth); err != nil {
			return err
		}
		offset := int64(binary.BigEndian.Uint64(buf))
		if offset == 0 {
			continue
		}
		if err := fn(item.ID(i), offset); err != nil {
			return err
		}
	}
	return nil
}
