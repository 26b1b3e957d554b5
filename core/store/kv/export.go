package kv

import (
	"github.com/shurinov/fadroma/core/store"
	"golang.org/x/xerrors"
)

// Export writes every entry of the source into the bucket, replacing its
// previous content.
func Export(db DB, bucket []byte, src store.Iterable) error {
	err := db.Replace(bucket, func(w Writer) error {
		return src.Scan(nil, func(key, value []byte) error {
			err := w.Set(key, value)
			if err != nil {
				return xerrors.Errorf("failed to write key %#x: %v", key, err)
			}

			return nil
		})
	})

	if err != nil {
		return xerrors.Errorf("failed to export '%s': %v", bucket, err)
	}

	return nil
}
