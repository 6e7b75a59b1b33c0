package serialport

import (
	"fmt"

	"go.bug.st/serial"
)

// DefaultBaudRate is the line speed used by FreeEEG32 class devices.
const DefaultBaudRate = 921600

// PortOptions describes how a real port is opened. The board always frames
// 8 data bits with no parity and one stop bit, so only the speed varies.
type PortOptions struct {
	BaudRate int `json:"baud_rate" yaml:"baud_rate"`
}

// Normalise validates the options and applies the default speed when unset.
func (o PortOptions) Normalise() (PortOptions, error) {
	if o.BaudRate < 0 {
		return o, fmt.Errorf("invalid baud rate %d", o.BaudRate)
	}
	if o.BaudRate == 0 {
		o.BaudRate = DefaultBaudRate
	}
	return o, nil
}

// SerialMode converts the options into the 8N1 serial.Mode used to open
// the port.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalise()
	if err != nil {
		return nil, err
	}
	return &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}, nil
}
