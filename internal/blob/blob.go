// SPDX-License-Identifier: MIT

// Package blob stores geometry payloads (uploaded datasets and operation
// results) in an embedded Badger key-value store.
package blob

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound signals a missing payload.
var ErrNotFound = errors.New("blob not found")

// Key prefixes separating payload classes in the keyspace.
const (
	DatasetPrefix = "dataset/"
	ResultPrefix  = "result/"
)

// Store is a Badger-backed payload store.
type Store struct {
	db *badger.DB
}

// Open opens the Badger database at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores a payload under key.
func (s *Store) Put(key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// PutTTL stores a payload that expires after ttl. Used for job results so
// stale output does not accumulate forever.
func (s *Store) PutTTL(key string, value []byte, ttl time.Duration) error {
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
}

// Get retrieves a payload by key.
func (s *Store) Get(key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get blob %s: %w", key, err)
	}
	return out, nil
}

// Delete removes a payload. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// DropPrefix removes every payload under a key prefix.
func (s *Store) DropPrefix(prefix string) error {
	return s.db.DropPrefix([]byte(prefix))
}
