// Package kv defines the on-disk database that receives the export of the
// ensemble state. Each store of the ensemble is written to its own bucket.
//
// The package also implements a default database implementation that is using
// bbolt as the engine (https://github.com/etcd-io/bbolt).
package kv

import "golang.org/x/xerrors"

// ErrNotFound is returned when reading a store that has not been exported.
var ErrNotFound = xerrors.New("store not found")

// Writer receives the entries of a store being exported.
type Writer interface {
	Set(key, value []byte) error
}

// DB is the interface of a database of exported stores.
type DB interface {
	// Replace drops the content of the bucket and lets fn write the new one.
	// Nothing is changed if fn returns an error.
	Replace(bucket []byte, fn func(Writer) error) error

	// Read calls fn for every entry of the bucket in the key order. The
	// slices are only valid during the call.
	Read(bucket []byte, fn func(key, value []byte) error) error

	// Close closes the database and free the resources.
	Close() error
}
