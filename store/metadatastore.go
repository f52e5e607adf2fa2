package store

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"

	"github.com/rcowham/cvs2git/item"
)

// MetadataStore is a small append-only store of deduplicated commit
// metadata (author/log message/project/branch), keyed by metadata id
// and shared across every revision item folded into the same commit
// grouping. It reuses the
// same offset-indexed layout as ItemStore but skips compression: entries
// are short and the corpus (unlike raw file content) compresses poorly
// given how little repeats line to line.
type MetadataStore struct {
	data  *os.File
	end   int64
	table *RecordTable
}

const metadataHeaderMagic = "cvs2git-metadata-store-v1\n"

// OpenMetadataStore opens or creates the store rooted at dataPath.
func OpenMetadataStore(dataPath string) (*MetadataStore, error) {
	f, err := os.OpenFile(dataPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open metadata store %s: %w", dataPath, err)
	}
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	end := info.Size()
	if end == 0 {
		n, err := f.WriteString(metadataHeaderMagic)
		if err != nil {
			return nil, fmt.Errorf("write metadata store header: %w", err)
		}
		end = int64(n)
	}
	table, err := OpenRecordTable(dataPath + ".idx")
	if err != nil {
		f.Close()
		return nil, err
	}
	return &MetadataStore{data: f, end: end, table: table}, nil
}

func (s *MetadataStore) Close() error {
	err1 := s.data.Close()
	err2 := s.table.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Put appends m and indexes it under its own ID.
func (s *MetadataStore) Put(m item.Metadata) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		return fmt.Errorf("encode metadata %d: %w", m.ID, err)
	}
	lenPrefix := make([]byte, 4)
	putUint32(lenPrefix, uint32(buf.Len()))

	offset := s.end
	if _, err := s.data.WriteAt(lenPrefix, offset); err != nil {
		return fmt.Errorf("write metadata %d length: %w", m.ID, err)
	}
	if _, err := s.data.WriteAt(buf.Bytes(), offset+4); err != nil {
		return fmt.Errorf("write metadata %d body: %w", m.ID, err)
	}
	s.end = offset + 4 + int64(buf.Len())
	return s.table.Put(m.ID, offset)
}

// Get resolves id to its metadata record; the Metadata method below
// wraps it to satisfy commitcreator.ItemLookup.
func (s *MetadataStore) Get(id item.ID) (item.Metadata, bool) {
	offset, ok, err := s.table.Get(id)
	if err != nil || !ok {
		return item.Metadata{}, false
	}
	lenPrefix := make([]byte, 4)
	if _, err := s.data.ReadAt(lenPrefix, offset); err != nil {
		return item.Metadata{}, false
	}
	n := getUint32(lenPrefix)
	body := make([]byte, n)
	if _, err := s.data.ReadAt(body, offset+4); err != nil {
		return item.Metadata{}, false
	}
	var m item.Metadata
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&m); err != nil {
		return item.Metadata{}, false
	}
	return m, true
}

// Metadata is the method name commitcreator.ItemLookup actually expects.
func (s *MetadataStore) Metadata(id item.ID) (item.Metadata, bool) {
	return s.Get(id)
}
