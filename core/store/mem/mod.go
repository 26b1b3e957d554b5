// Package mem implements an in-memory checkpointed store.
//
// The store keeps a base map with the committed values and a stack of layers,
// one per live checkpoint. A layer only records the keys written since its
// checkpoint, deletions included, and a read looks up the layers from the top
// before falling back to the base.
package mem

import (
	"bytes"
	"sort"

	"github.com/shurinov/fadroma/core/store"
)

// item is an entry of a layer. A deleted item hides the keys of the layers
// below.
type item struct {
	value   []byte
	deleted bool
}

type layer map[string]item

// Store is an in-memory implementation of a checkpointed store.
//
// - implements store.Checkpointed
type Store struct {
	base   map[string][]byte
	layers []layer
}

// NewStore creates a new empty store without any checkpoint.
func NewStore() *Store {
	return &Store{
		base: make(map[string][]byte),
	}
}

// NewFactory returns a store factory that creates in-memory stores.
func NewFactory() store.Factory {
	return func() store.Checkpointed {
		return NewStore()
	}
}

// Get implements store.Readable. It returns the most recent value of the key,
// or nil if it does not exist.
func (s *Store) Get(key []byte) ([]byte, error) {
	str := string(key)

	for i := len(s.layers) - 1; i >= 0; i-- {
		it, found := s.layers[i][str]
		if !found {
			continue
		}

		if it.deleted {
			return nil, nil
		}

		return clone(it.value), nil
	}

	return clone(s.base[str]), nil
}

// Set implements store.Writable.
func (s *Store) Set(key, value []byte) error {
	if len(s.layers) == 0 {
		s.base[string(key)] = clone(value)
		return nil
	}

	s.top()[string(key)] = item{value: clone(value)}

	return nil
}

// Delete implements store.Writable.
func (s *Store) Delete(key []byte) error {
	if len(s.layers) == 0 {
		delete(s.base, string(key))
		return nil
	}

	s.top()[string(key)] = item{deleted: true}

	return nil
}

// Scan implements store.Iterable. It merges the base and the layers and
// visits the visible keys in ascending order.
func (s *Store) Scan(prefix []byte, fn func(key, value []byte) error) error {
	keys := make(map[string]struct{})

	for k := range s.base {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys[k] = struct{}{}
		}
	}

	for _, l := range s.layers {
		for k := range l {
			if bytes.HasPrefix([]byte(k), prefix) {
				keys[k] = struct{}{}
			}
		}
	}

	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}

	sort.Strings(sorted)

	for _, k := range sorted {
		value, _ := s.Get([]byte(k))
		if value == nil {
			continue
		}

		err := fn([]byte(k), value)
		if err != nil {
			return err
		}
	}

	return nil
}

// Checkpoint implements store.Checkpointed. It pushes a new empty layer.
func (s *Store) Checkpoint() {
	s.layers = append(s.layers, make(layer))
}

// Commit implements store.Checkpointed. It merges the top layer into the one
// below, or into the base when it is the last one.
func (s *Store) Commit() error {
	if len(s.layers) == 0 {
		return store.ErrNoCheckpoint
	}

	top := s.pop()

	if len(s.layers) == 0 {
		for k, it := range top {
			if it.deleted {
				delete(s.base, k)
			} else {
				s.base[k] = it.value
			}
		}

		return nil
	}

	parent := s.top()
	for k, it := range top {
		parent[k] = it
	}

	return nil
}

// Revert implements store.Checkpointed. It drops the top layer.
func (s *Store) Revert() error {
	if len(s.layers) == 0 {
		return store.ErrNoCheckpoint
	}

	s.pop()

	return nil
}

// Depth implements store.Checkpointed.
func (s *Store) Depth() int {
	return len(s.layers)
}

func (s *Store) top() layer {
	return s.layers[len(s.layers)-1]
}

func (s *Store) pop() layer {
	top := s.top()
	s.layers[len(s.layers)-1] = nil
	s.layers = s.layers[:len(s.layers)-1]

	return top
}

func clone(value []byte) []byte {
	if value == nil {
		return nil
	}

	return append([]byte{}, value...)
}
