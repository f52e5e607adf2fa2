// Package store implements the two leaf components of the changeset
// engine: an append-only indexed item store and the fixed-width record
// table that indexes it. The data file is append-only and the record
// table overwrites fixed-width slots in place (a delete zeroes a slot):
// writes are O(1) and a modified version of a store can be built by
// copying just the index while sharing the data file, at the cost of
// wasted space from deleted/superseded records - the same tradeoff the
// teacher repo makes for its blob archive layout (main.go's
// getBlobIDPath/writeBlob).
package store

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/golang/snappy"

	"github.com/rcowham/cvs2git/item"
)

// ErrNotFound is returned by Get when id has no live offset - a normal
// result value, never a panic or sentinel exception.
var ErrNotFound = errors.New("item not found")

// headerMagic self-describes the format so a later reader (or a debugging
// tool) can tell it is looking at one of our stores before trusting the
// rest of the file.
const headerMagic = "cvs2git-item-store-v1\n"

// ItemStore is an append-only binary file of gob-encoded, snappy-compressed
// item records, plus a companion RecordTable mapping id -> byte offset.
type ItemStore struct {
	dataPath string
	data     *os.File
	end      int64 // next write offset
	table    *RecordTable
}

// OpenItemStore opens or creates the store rooted at dataPath (its
// companion record table lives at dataPath+".idx").
func OpenItemStore(dataPath string) (*ItemStore, error) {
	f, err := os.OpenFile(dataPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open item store %s: %w", dataPath, err)
	}
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	end := info.Size()
	if end == 0 {
		n, err := f.WriteString(headerMagic)
		if err != nil {
			return nil, fmt.Errorf("write item store header: %w", err)
		}
		end = int64(n)
	}
	table, err := OpenRecordTable(dataPath + ".idx")
	if err != nil {
		f.Close()
		return nil, err
	}
	return &ItemStore{dataPath: dataPath, data: f, end: end, table: table}, nil
}

func (s *ItemStore) Close() error {
	err1 := s.data.Close()
	err2 := s.table.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Put appends the serialized record and indexes its offset under id.
func (s *ItemStore) Put(id item.ID, rec item.Record) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return fmt.Errorf("encode item %d: %w", id, err)
	}
	compressed := snappy.Encode(nil, buf.Bytes())

	lenPrefix := make([]byte, 4)
	putUint32(lenPrefix, uint32(len(compressed)))

	offset := s.end
	if _, err := s.data.WriteAt(lenPrefix, offset); err != nil {
		return fmt.Errorf("write item %d length: %w", id, err)
	}
	if _, err := s.data.WriteAt(compressed, offset+4); err != nil {
		return fmt.Errorf("write item %d body: %w", id, err)
	}
	s.end = offset + 4 + int64(len(compressed))

	return s.table.Put(id, offset)
}

// Get reads and deserializes one record, or ErrNotFound if id is absent
// or deleted.
func (s *ItemStore) Get(id item.ID) (item.Record, error) {
	offset, ok, err := s.table.Get(id)
	if err != nil {
		return item.Record{}, err
	}
	if !ok {
		return item.Record{}, ErrNotFound
	}
	lenPrefix := make([]byte, 4)
	if _, err := s.data.ReadAt(lenPrefix, offset); err != nil {
		return item.Record{}, fmt.Errorf("read item %d length: %w", id, err)
	}
	n := getUint32(lenPrefix)
	compressed := make([]byte, n)
	if _, err := s.data.ReadAt(compressed, offset+4); err != nil {
		return item.Record{}, fmt.Errorf("read item %d body: %w", id, err)
	}
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return item.Record{}, fmt.Errorf("decompress item %d: %w", id, err)
	}
	var rec item.Record
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&rec); err != nil {
		return item.Record{}, fmt.Errorf("decode item %d: %w", id, err)
	}
	return rec, nil
}

// Delete marks id absent. The data file is not truncated or compacted.
func (s *ItemStore) Delete(id item.ID) error {
	return s.table.Delete(id)
}

// Iter yields every live record in ascending id order.
func (s *ItemStore) Iter(fn func(id item.ID, rec item.Record) error) error {
	return s.table.Iter(func(id item.ID, offset int64) error {
		rec, err := s.Get(id)
		if err != nil {
			if err == ErrNotFound {
				return nil
			}
			return err
		}
		return fn(id, rec)
	})
}

// MaxID reports the highest live id in the store, for resuming a
// KeyGenerator across passes.
func (s *ItemStore) MaxID() (item.ID, bool, error) {
	return s.table.MaxID()
}

// Revision satisfies changeset.ItemLookup: resolve id as a revision item,
// silently reporting not-found for any error (absent, deleted, or a
// Symbol record under that id) since callers only care whether the
// lookup succeeded.
func (s *ItemStore) Revision(id item.ID) (item.Revision, bool) {
	rec, err := s.Get(id)
	if err != nil || rec.Kind != item.KindRevision {
		return item.Revision{}, false
	}
	return rec.Revision, true
}

// Symbol satisfies changeset.ItemLookup: resolve id as a symbol item.
func (s *ItemStore) Symbol(id item.ID) (item.SymbolItem, bool) {
	rec, err := s.Get(id)
	if err != nil || rec.Kind != item.KindSymbol {
		return item.SymbolItem{}, false
	}
	return rec.Symbol, true
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func getUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

var _ io.Closer = (*ItemStore)(nil)
