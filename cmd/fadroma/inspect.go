package main

import (
	"fmt"
	"io"
	"unicode"
	"unicode/utf8"

	"github.com/shurinov/fadroma/core/store/kv"
	"golang.org/x/xerrors"
)

// inspectAction prints the entries of a store exported by the run command.
type inspectAction struct {
	out io.Writer
}

// Execute prints one line per entry of the store designated by the flags.
func (a inspectAction) Execute(flags flagSet) error {
	db, err := kv.NewReadOnly(flags.Path("db"))
	if err != nil {
		return err
	}

	defer db.Close()

	err = db.Read([]byte(flags.String("store")), func(key, value []byte) error {
		fmt.Fprintf(a.out, "%s: %s\n", printable(key), printable(value))
		return nil
	})
	if err != nil {
		return xerrors.Errorf("failed to inspect: %v", err)
	}

	return nil
}

// printable returns the text of the bytes, or their hexadecimal form when
// they are not printable.
func printable(data []byte) string {
	if !utf8.Valid(data) {
		return fmt.Sprintf("%#x", data)
	}

	for _, r := range string(data) {
		if !unicode.IsPrint(r) {
			return fmt.Sprintf("%#x", data)
		}
	}

	return string(data)
}
