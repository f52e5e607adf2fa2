// Package metadb implements the two read-only collaborator databases
// the core consumes from the upstream parser: a file-metadata database
// (file id -> path, mode) and a symbol database (symbol id -> {name,
// kind}). The core never inspects their byte format beyond what these
// store abstractions define, which leaves the concrete format to
// whatever the output back-end prefers - here, a single-bucket-per-kind
// bbolt store, gob-encoding each value.
package metadb

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/rcowham/cvs2git/item"
)

var fileBucket = []byte("files")
var symbolBucket = []byte("symbols")

// FileRecord is one file's path/mode as known to the upstream parser.
type FileRecord struct {
	Path string
	Mode uint32
}

// FileDatabase maps file id -> FileRecord.
type FileDatabase struct {
	db *bolt.DB
}

// OpenFileDatabase opens or creates the bbolt file at path.
func OpenFileDatabase(path string) (*FileDatabase, error) {
	db, err := bolt.Open(path, 0644, nil)
	if err != nil {
		return nil, fmt.Errorf("open file database %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(fileBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &FileDatabase{db: db}, nil
}

func (d *FileDatabase) Close() error { return d.db.Close() }

// Put records fr under id, overwriting any previous value.
func (d *FileDatabase) Put(id item.ID, fr FileRecord) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(fr); err != nil {
			return err
		}
		return tx.Bucket(fileBucket).Put(idKey(id), buf.Bytes())
	})
}

// Get resolves id to its FileRecord.
func (d *FileDatabase) Get(id item.ID) (FileRecord, bool) {
	var fr FileRecord
	found := false
	_ = d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(fileBucket).Get(idKey(id))
		if v == nil {
			return nil
		}
		if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&fr); err != nil {
			return err
		}
		found = true
		return nil
	})
	return fr, found
}

// SymbolDatabase maps symbol id -> item.Symbol.
type SymbolDatabase struct {
	db *bolt.DB
}

// OpenSymbolDatabase opens or creates the bbolt file at path.
func OpenSymbolDatabase(path string) (*SymbolDatabase, error) {
	db, err := bolt.Open(path, 0644, nil)
	if err != nil {
		return nil, fmt.Errorf("open symbol database %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(symbolBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &SymbolDatabase{db: db}, nil
}

func (d *SymbolDatabase) Close() error { return d.db.Close() }

// Put records sym under its own id.
func (d *SymbolDatabase) Put(sym item.Symbol) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(sym); err != nil {
			return err
		}
		return tx.Bucket(symbolBucket).Put(idKey(sym.ID), buf.Bytes())
	})
}

// Get resolves id to its Symbol, satisfying builder.SymbolLookup.
func (d *SymbolDatabase) Get(id item.ID) (item.Symbol, bool) {
	var sym item.Symbol
	found := false
	_ = d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(symbolBucket).Get(idKey(id))
		if v == nil {
			return nil
		}
		if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&sym); err != nil {
			return err
		}
		found = true
		return nil
	})
	return sym, found
}

func idKey(id item.ID) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(id))
	return b
}
