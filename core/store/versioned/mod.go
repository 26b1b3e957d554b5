// Package versioned implements a checkpointed store on top of the avalanchego
// database layers.
//
// Every checkpoint wraps the current database into a versiondb layer that
// buffers the writes in memory. A commit flushes the buffered writes into the
// database below and a revert aborts them.
package versioned

import (
	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/database/memdb"
	"github.com/ava-labs/avalanchego/database/versiondb"
	"github.com/shurinov/fadroma/core/store"
	"golang.org/x/xerrors"
)

// Store is a checkpointed store backed by versiondb layers.
//
// - implements store.Checkpointed
type Store struct {
	base   database.Database
	layers []*versiondb.Database
}

// NewStore creates a store on top of an empty in-memory database.
func NewStore() *Store {
	return NewStoreOn(memdb.New())
}

// NewStoreOn creates a store that uses the given database to hold the
// committed values.
func NewStoreOn(db database.Database) *Store {
	return &Store{
		base: db,
	}
}

// NewFactory returns a store factory that creates versioned stores backed by
// in-memory databases.
func NewFactory() store.Factory {
	return func() store.Checkpointed {
		return NewStore()
	}
}

// Get implements store.Readable.
func (s *Store) Get(key []byte) ([]byte, error) {
	value, err := s.current().Get(key)
	if xerrors.Is(err, database.ErrNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, xerrors.Errorf("failed to read db: %v", err)
	}

	return append([]byte{}, value...), nil
}

// Set implements store.Writable.
func (s *Store) Set(key, value []byte) error {
	// The layers keep the slice they are given.
	err := s.current().Put(key, append([]byte{}, value...))
	if err != nil {
		return xerrors.Errorf("failed to write db: %v", err)
	}

	return nil
}

// Delete implements store.Writable.
func (s *Store) Delete(key []byte) error {
	err := s.current().Delete(key)
	if err != nil {
		return xerrors.Errorf("failed to delete in db: %v", err)
	}

	return nil
}

// Scan implements store.Iterable. The database iterators already merge the
// layers and return the keys in ascending order.
func (s *Store) Scan(prefix []byte, fn func(key, value []byte) error) error {
	iter := s.current().NewIteratorWithPrefix(prefix)
	defer iter.Release()

	for iter.Next() {
		err := fn(iter.Key(), iter.Value())
		if err != nil {
			return err
		}
	}

	err := iter.Error()
	if err != nil {
		return xerrors.Errorf("iterator failed: %v", err)
	}

	return nil
}

// Checkpoint implements store.Checkpointed.
func (s *Store) Checkpoint() {
	s.layers = append(s.layers, versiondb.New(s.current()))
}

// Commit implements store.Checkpointed. It writes the pending changes of the
// top layer into the layer below.
func (s *Store) Commit() error {
	if len(s.layers) == 0 {
		return store.ErrNoCheckpoint
	}

	top := s.pop()

	err := top.Commit()
	if err != nil {
		return xerrors.Errorf("failed to commit layer: %v", err)
	}

	return nil
}

// Revert implements store.Checkpointed.
func (s *Store) Revert() error {
	if len(s.layers) == 0 {
		return store.ErrNoCheckpoint
	}

	s.pop().Abort()

	return nil
}

// Depth implements store.Checkpointed.
func (s *Store) Depth() int {
	return len(s.layers)
}

func (s *Store) current() database.Database {
	if len(s.layers) == 0 {
		return s.base
	}

	return s.layers[len(s.layers)-1]
}

func (s *Store) pop() *versiondb.Database {
	top := s.layers[len(s.layers)-1]
	s.layers = s.layers[:len(s.layers)-1]

	return top
}
