package kv

import (
	"go.etcd.io/bbolt"
	"golang.org/x/xerrors"
)

// boltDB is the database of exported stores backed by bbolt.
//
// - implements kv.DB
type boltDB struct {
	bolt *bbolt.DB
}

// New opens the database at the given path, and creates it if it does not
// exist yet.
func New(path string) (DB, error) {
	return open(path, &bbolt.Options{})
}

// NewReadOnly opens an existing database for inspection. Replace fails on such
// a database.
func NewReadOnly(path string) (DB, error) {
	return open(path, &bbolt.Options{ReadOnly: true})
}

func open(path string, opts *bbolt.Options) (DB, error) {
	db, err := bbolt.Open(path, 0666, opts)
	if err != nil {
		return nil, xerrors.Errorf("failed to open db: %v", err)
	}

	return boltDB{bolt: db}, nil
}

// Replace implements kv.DB. The bucket is dropped and created again in the
// same transaction as the writes of fn.
func (db boltDB) Replace(bucket []byte, fn func(Writer) error) error {
	return db.bolt.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucket) != nil {
			err := tx.DeleteBucket(bucket)
			if err != nil {
				return xerrors.Errorf("failed to drop bucket: %v", err)
			}
		}

		b, err := tx.CreateBucket(bucket)
		if err != nil {
			return xerrors.Errorf("failed to create bucket: %v", err)
		}

		return fn(boltWriter{bucket: b})
	})
}

// Read implements kv.DB.
func (db boltDB) Read(bucket []byte, fn func(key, value []byte) error) error {
	return db.bolt.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return xerrors.Errorf("'%s': %w", bucket, ErrNotFound)
		}

		return b.ForEach(fn)
	})
}

// Close implements kv.DB.
func (db boltDB) Close() error {
	return db.bolt.Close()
}

// boltWriter writes the entries of a store into a bucket. The slices are
// copied as bbolt keeps them until the end of the transaction while the
// stores may reuse them.
//
// - implements kv.Writer
type boltWriter struct {
	bucket *bbolt.Bucket
}

// Set implements kv.Writer.
func (w boltWriter) Set(key, value []byte) error {
	return w.bucket.Put(append([]byte{}, key...), append([]byte{}, value...))
}
