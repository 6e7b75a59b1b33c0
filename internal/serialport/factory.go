package serialport

import (
	"errors"
	"fmt"
	"runtime"

	"go.bug.st/serial"
)

type realFactory struct {
	timeoutOnly bool
}

// NewFactory returns a Factory that opens real ports through go.bug.st/serial.
// On Windows the vendor driver ignores line settings, so ports opened there
// report TimeoutOnly.
func NewFactory() Factory {
	return &realFactory{timeoutOnly: runtime.GOOS == "windows"}
}

func (f *realFactory) Open(path string, opts PortOptions) (Port, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	p, err := serial.Open(path, mode)
	if err != nil {
		return nil, translateError(err)
	}
	return &realPort{Port: p, mode: *mode, timeoutOnly: f.timeoutOnly}, nil
}

// realPort adapts serial.Port to Port.
type realPort struct {
	serial.Port
	mode        serial.Mode
	timeoutOnly bool
}

func (p *realPort) Read(b []byte) (int, error) {
	n, err := p.Port.Read(b)
	return n, translateError(err)
}

func (p *realPort) SetBaudRate(baud int) error {
	mode := p.mode
	mode.BaudRate = baud
	if err := p.Port.SetMode(&mode); err != nil {
		return translateError(err)
	}
	p.mode = mode
	return nil
}

func (p *realPort) TimeoutOnly() bool {
	return p.timeoutOnly
}

// translateError maps driver error codes onto the package sentinels.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PortBusy:
			return fmt.Errorf("%w: %v", ErrBusy, err)
		case serial.PortClosed:
			return fmt.Errorf("%w: %v", ErrClosed, err)
		}
	}
	return err
}
