//go:build !no_serial
// +build !no_serial

package inject

import (
	"fmt"
	"io"

	"github.com/tarm/serial"
)

// OpenSerial opens a serial port as an injection source.
func OpenSerial(name string, baud int) (io.ReadCloser, error) {
	port, err := serial.OpenPort(&serial.Config{Name: name, Baud: baud})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", name, err)
	}
	return port, nil
}
