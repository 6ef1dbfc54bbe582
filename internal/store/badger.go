package store

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// BadgerKV implements KV over a BadgerDB directory, for raster archives
// synced to local disk.
type BadgerKV struct {
	db *badger.DB
}

// OpenBadgerKV opens (or creates) a BadgerDB at path.
func OpenBadgerKV(path string) (*BadgerKV, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // BadgerDB logging is noisy at startup

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &BadgerKV{db: db}, nil
}

// Get returns the value for key, with found=false on a miss.
func (b *BadgerKV) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set stores value under key.
func (b *BadgerKV) Set(key string, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// Close closes the underlying database. Call during shutdown.
func (b *BadgerKV) Close() error {
	return b.db.Close()
}
