package cache

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore implements Store over a BadgerDB directory, for caches that
// persist across process lifetimes.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) a BadgerDB at path.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// SetItems stores all items in one transaction.
func (b *BadgerStore) SetItems(items map[string][]byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		for k, v := range items {
			if err := txn.Set([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetItems returns the values for keys in order, nil for missing keys.
func (b *BadgerStore) GetItems(keys []string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	err := b.db.View(func(txn *badger.Txn) error {
		for i, k := range keys {
			item, err := txn.Get([]byte(k))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			out[i], err = item.ValueCopy(nil)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetAll returns every entry whose key starts with prefix.
func (b *BadgerStore) GetAll(prefix string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out[string(item.Key())] = value
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes the underlying database. Call during shutdown.
func (b *BadgerStore) Close() error {
	return b.db.Close()
}
