// Package serialport provides the serial-line transport used by framed
// acquisition boards, along with test doubles that stand in for hardware.
package serialport

import (
	"errors"
	"io"
	"time"
)

var (
	// ErrClosed is returned by reads and writes on a closed port.
	ErrClosed = errors.New("serial port closed")
	// ErrBusy is returned when the device is held by another handle.
	ErrBusy = errors.New("serial port busy")
)

// Port defines the operations acquisition needs from an open serial line.
// This abstraction enables unit testing without real serial hardware.
type Port interface {
	io.ReadWriteCloser

	// SetReadTimeout bounds how long a Read may block before returning zero
	// bytes and a nil error.
	SetReadTimeout(timeout time.Duration) error

	// ResetInputBuffer discards bytes received but not yet read.
	ResetInputBuffer() error

	// SetBaudRate reprograms the line speed, including non-standard rates.
	SetBaudRate(baud int) error

	// TimeoutOnly reports that the driver ignores line settings, so only the
	// read timeout should be applied.
	TimeoutOnly() bool
}

// Factory defines an interface for opening serial ports.
// This abstraction enables dependency injection of serial port creation.
type Factory interface {
	// Open opens the serial port at path with the given options.
	Open(path string, opts PortOptions) (Port, error)
}

// ApplySettings configures an open port for streaming: the read timeout is
// always set, and the custom baud rate only when the port honours it.
func ApplySettings(p Port, timeout time.Duration, baud int) error {
	if err := p.SetReadTimeout(timeout); err != nil {
		return err
	}
	if p.TimeoutOnly() {
		return nil
	}
	return p.SetBaudRate(baud)
}
