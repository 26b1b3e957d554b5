// Package prefixed implements a namespaced view of a store. Every key is
// stored behind the encoded namespace so that several components can share a
// single store and still enumerate their own keys.
package prefixed

import (
	"encoding/binary"

	"github.com/shurinov/fadroma/core/store"
)

type snapshot struct {
	parent store.IterableSnapshot
	prefix []byte
}

// NewSnapshot creates a new prefixed snapshot.
func NewSnapshot(prefix string, snap store.IterableSnapshot) store.IterableSnapshot {
	return &snapshot{
		parent: snap,
		prefix: NewPrefixedKey([]byte(prefix), nil),
	}
}

// Get implements store.Readable.
func (s *snapshot) Get(key []byte) ([]byte, error) {
	return s.parent.Get(s.key(key))
}

// Set implements store.Writable.
func (s *snapshot) Set(key []byte, value []byte) error {
	return s.parent.Set(s.key(key), value)
}

// Delete implements store.Writable.
func (s *snapshot) Delete(key []byte) error {
	return s.parent.Delete(s.key(key))
}

// Scan implements store.Iterable. The keys given to the callback are stripped
// of the namespace.
func (s *snapshot) Scan(prefix []byte, fn func(key, value []byte) error) error {
	return s.parent.Scan(s.key(prefix), func(key, value []byte) error {
		return fn(key[len(s.prefix):], value)
	})
}

func (s *snapshot) key(key []byte) []byte {
	k := make([]byte, 0, len(s.prefix)+len(key))
	k = append(k, s.prefix...)

	return append(k, key...)
}

// NewPrefixedKey is exported because it is used in tests. It creates a key
// from a prefix and a base key where the prefix is length-delimited, so that
// two namespaces never overlap.
func NewPrefixedKey(prefix, key []byte) []byte {
	length := []byte{0, 0}
	binary.BigEndian.PutUint16(length, uint16(len(prefix)))

	k := make([]byte, 0, 2+len(prefix)+len(key))
	k = append(k, length...)
	k = append(k, prefix...)

	return append(k, key...)
}
