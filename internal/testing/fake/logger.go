package fake

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// CheckLog returns a logger and a check function. When called, the function
// will verify if the logger has seen the message printed.
func CheckLog(msg string) (zerolog.Logger, func(t *testing.T)) {
	buffer := new(bytes.Buffer)

	check := func(t *testing.T) {
		require.Contains(t, buffer.String(), fmt.Sprintf(`"%s"`, msg))
	}

	return zerolog.New(buffer), check
}

// CaptureLog returns a logger writing JSON lines to the returned buffer. The
// level is set to trace so that every line is kept.
func CaptureLog() (zerolog.Logger, *bytes.Buffer) {
	buffer := new(bytes.Buffer)

	return zerolog.New(buffer).Level(zerolog.TraceLevel), buffer
}
