package fake

import (
	"sort"
	"strings"

	"github.com/shurinov/fadroma/core/store"
)

// InMemorySnapshot is a fake implementation of a store snapshot.
//
// - implements store.IterableSnapshot
type InMemorySnapshot struct {
	values    map[string][]byte
	ErrRead   error
	ErrWrite  error
	ErrDelete error
	ErrScan   error
}

// NewSnapshot creates a new empty snapshot.
func NewSnapshot() *InMemorySnapshot {
	return &InMemorySnapshot{
		values: make(map[string][]byte),
	}
}

// NewBadSnapshot creates a new empty snapshot that will always return an error.
func NewBadSnapshot() *InMemorySnapshot {
	return &InMemorySnapshot{
		values:    make(map[string][]byte),
		ErrRead:   fakeErr,
		ErrWrite:  fakeErr,
		ErrDelete: fakeErr,
		ErrScan:   fakeErr,
	}
}

// Get implements store.Readable.
func (snap *InMemorySnapshot) Get(key []byte) ([]byte, error) {
	return snap.values[string(key)], snap.ErrRead
}

// Set implements store.Writable.
func (snap *InMemorySnapshot) Set(key, value []byte) error {
	snap.values[string(key)] = value

	return snap.ErrWrite
}

// Delete implements store.Writable.
func (snap *InMemorySnapshot) Delete(key []byte) error {
	delete(snap.values, string(key))

	return snap.ErrDelete
}

// Scan implements store.Iterable.
func (snap *InMemorySnapshot) Scan(prefix []byte, fn func(key, value []byte) error) error {
	if snap.ErrScan != nil {
		return snap.ErrScan
	}

	keys := make([]string, 0, len(snap.values))
	for key := range snap.values {
		if strings.HasPrefix(key, string(prefix)) {
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)

	for _, key := range keys {
		err := fn([]byte(key), snap.values[key])
		if err != nil {
			return err
		}
	}

	return nil
}

// BadStore is a checkpointed store that returns the configured errors and
// otherwise forwards to the wrapped store.
//
// - implements store.Checkpointed
type BadStore struct {
	store.Checkpointed

	ErrGet    error
	ErrSet    error
	ErrDelete error
	ErrScan   error
	ErrCommit error
	ErrRevert error
}

// NewBadStore wraps the store so that every write fails.
func NewBadStore(s store.Checkpointed) *BadStore {
	return &BadStore{
		Checkpointed: s,
		ErrSet:       fakeErr,
		ErrDelete:    fakeErr,
	}
}

// Get implements store.Readable.
func (s *BadStore) Get(key []byte) ([]byte, error) {
	if s.ErrGet != nil {
		return nil, s.ErrGet
	}

	return s.Checkpointed.Get(key)
}

// Set implements store.Writable.
func (s *BadStore) Set(key, value []byte) error {
	if s.ErrSet != nil {
		return s.ErrSet
	}

	return s.Checkpointed.Set(key, value)
}

// Delete implements store.Writable.
func (s *BadStore) Delete(key []byte) error {
	if s.ErrDelete != nil {
		return s.ErrDelete
	}

	return s.Checkpointed.Delete(key)
}

// Scan implements store.Iterable.
func (s *BadStore) Scan(prefix []byte, fn func(key, value []byte) error) error {
	if s.ErrScan != nil {
		return s.ErrScan
	}

	return s.Checkpointed.Scan(prefix, fn)
}

// Commit implements store.Checkpointed.
func (s *BadStore) Commit() error {
	if s.ErrCommit != nil {
		return s.ErrCommit
	}

	return s.Checkpointed.Commit()
}

// Revert implements store.Checkpointed.
func (s *BadStore) Revert() error {
	if s.ErrRevert != nil {
		return s.ErrRevert
	}

	return s.Checkpointed.Revert()
}
