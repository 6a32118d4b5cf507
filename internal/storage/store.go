package storage

import (
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

// ErrDocNotFound is returned by Get when no document exists under the key.
var ErrDocNotFound = errors.New("document not found")

// DocStore is the storage contract a shard copy needs: raw JSON documents
// keyed by document ID. Implementations must be safe for concurrent use.
type DocStore interface {
	// Put stores a document under the given ID, replacing any previous
	// version.
	Put(id string, doc []byte) error

	// Get returns the document stored under id, or ErrDocNotFound.
	Get(id string) ([]byte, error)

	// Delete removes the document under id. Deleting a missing document is
	// not an error.
	Delete(id string) error

	// List returns all document IDs in lexicographic order.
	List() ([]string, error)

	// Count returns the number of stored documents.
	Count() (int, error)

	// Close releases the underlying database. The store is unusable after
	// Close returns.
	Close() error
}

// BadgerStore implements DocStore on top of a Badger database. An empty
// path opens an in-memory database, which is what nodes use by default; a
// non-empty path persists to that directory.
type BadgerStore struct {
	db *badger.DB
}

var _ DocStore = (*BadgerStore)(nil)

// OpenBadger opens a document store at path, or in memory when path is "".
func OpenBadger(path string) (*BadgerStore, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	// Badger's own logger writes unstructured lines; silence it and let the
	// caller log store-level events.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Put stores doc under id.
func (s *BadgerStore) Put(id string, doc []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(id), doc)
	})
}

// Get returns the document stored under id.
func (s *BadgerStore) Get(id string) ([]byte, error) {
	var doc []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(id))
		if err != nil {
			return err
		}
		doc, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrDocNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Delete removes the document under id, if present.
func (s *BadgerStore) Delete(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(id))
	})
}

// List returns every document ID in key order. Values are not prefetched;
// only keys are walked.
func (s *BadgerStore) List() ([]string, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Count returns the number of stored documents.
func (s *BadgerStore) Count() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Close releases the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
