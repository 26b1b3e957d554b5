// Package store defines the primitives of a simple key/value storage that
// supports nested checkpoints.
//
// A checkpointed store keeps every write made since the last checkpoint in a
// separate layer. Committing merges that layer into the one below and
// reverting drops it, so both operations only cost the number of keys that
// changed.
package store

import "golang.org/x/xerrors"

// ErrNoCheckpoint is returned when a commit or a revert is requested on a
// store that has no live checkpoint.
var ErrNoCheckpoint = xerrors.New("no checkpoint")

// Readable is the interface for a readable store.
type Readable interface {
	// Get returns the value of the key, or nil if the key does not exist.
	Get(key []byte) ([]byte, error)
}

// Writable is the interface for a writable store.
type Writable interface {
	Set(key []byte, value []byte) error

	Delete(key []byte) error
}

// Iterable is the interface for a store that can enumerate its keys.
type Iterable interface {
	// Scan calls fn for every key starting with the prefix, in ascending key
	// order. The iteration stops at the first error returned by fn.
	Scan(prefix []byte, fn func(key, value []byte) error) error
}

// ReadOnly is a store that can only be read and scanned.
type ReadOnly interface {
	Readable
	Iterable
}

// Snapshot is a state of the store that can be read and write independently. A
// write is applied only to the snapshot reference.
type Snapshot interface {
	Readable
	Writable
}

// IterableSnapshot is a snapshot that can also be scanned.
type IterableSnapshot interface {
	Snapshot
	Iterable
}

// Checkpointed is a store that can save its current state and later either
// keep or discard the writes made since then. Checkpoints are nested and must
// be resolved in the reverse order of their creation.
type Checkpointed interface {
	IterableSnapshot

	// Checkpoint saves the current state.
	Checkpoint()

	// Commit discards the most recent checkpoint and keeps the writes made
	// since it was taken.
	Commit() error

	// Revert discards the writes made since the most recent checkpoint.
	Revert() error

	// Depth returns the number of live checkpoints.
	Depth() int
}

// Factory creates empty checkpointed stores.
type Factory func() Checkpointed
