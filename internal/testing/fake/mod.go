// Package fake provides the fakes shared by the tests of the module.
package fake

import (
	"fmt"

	"golang.org/x/xerrors"
)

var fakeErr = xerrors.New("fake error")

// GetError returns the error returned by the fakes.
func GetError() error {
	return fakeErr
}

// Err returns the message of an error that wraps the fake error with the
// message as a prefix.
func Err(msg string) string {
	return fmt.Sprintf("%s: %v", msg, fakeErr)
}
