//go:build no_serial
// +build no_serial

package inject

import (
	"errors"
	"io"
)

// OpenSerial is unavailable in builds tagged no_serial.
func OpenSerial(name string, baud int) (io.ReadCloser, error) {
	return nil, errors.New("serial injection disabled in this build (no_serial)")
}
