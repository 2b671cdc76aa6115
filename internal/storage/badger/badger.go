// Package badger implements storage.PositionStore on an embedded Badger database.
package badger

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v4"
)

// OpenOptions configures the embedded database.
type OpenOptions struct {
	Path string
	// InMemory keeps all data in RAM; Path must be empty.
	InMemory bool
	// EncryptionKey enables encryption at rest when set (16, 24 or 32 bytes).
	EncryptionKey []byte
}

// DB wraps a badger database for dependency injection.
type DB struct {
	db *badgerdb.DB
}

// Open opens (or creates) the database.
func Open(opts OpenOptions) (*DB, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" && !opts.InMemory {
		return nil, errors.New("badger: path is required")
	}

	bopts := badgerdb.DefaultOptions(path).
		WithLogger(nil).
		WithInMemory(opts.InMemory)
	if len(opts.EncryptionKey) > 0 {
		// encrypted workloads require an index cache
		bopts = bopts.
			WithEncryptionKey(opts.EncryptionKey).
			WithIndexCacheSize(100 << 20)
	}

	db, err := badgerdb.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger %s: %w", path, err)
	}
	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func getJSON(txn *badgerdb.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badgerdb.Txn, key []byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return txn.Set(key, b)
}

// scanPrefix calls fn with the value of every key under prefix, in key order.
func scanPrefix(txn *badgerdb.Txn, prefix []byte, fn func(val []byte) error) error {
	opts := badgerdb.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}
