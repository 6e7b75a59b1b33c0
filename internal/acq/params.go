package acq

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Transport selects the acquisition path of a session.
type Transport int

const (
	// TransportSerial reads FreeEEG32 frames from a serial line.
	TransportSerial Transport = iota
	// TransportMulticastRelay receives decoded samples from a multicast group.
	TransportMulticastRelay
)

func (t Transport) String() string {
	switch t {
	case TransportSerial:
		return "serial"
	case TransportMulticastRelay:
		return "relay"
	default:
		return fmt.Sprintf("transport(%d)", int(t))
	}
}

// ParseTransport accepts "serial" or "relay" (also "multicast").
func ParseTransport(s string) (Transport, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "serial", "":
		return TransportSerial, nil
	case "relay", "multicast":
		return TransportMulticastRelay, nil
	default:
		return 0, fmt.Errorf("unknown transport %q", s)
	}
}

// Params is the caller supplied connection configuration.
type Params struct {
	Transport  Transport
	SerialPort string // device path for TransportSerial
	IPAddress  string // multicast group for TransportMulticastRelay
	IPPort     int    // UDP port for TransportMulticastRelay
	OtherInfo  string // delegate board id, decimal
}

// Validate checks that the fields required by the transport are set.
func (p Params) Validate() error {
	switch p.Transport {
	case TransportSerial:
		if strings.TrimSpace(p.SerialPort) == "" {
			return newError("prepare", InvalidArgument, errors.New("serial port path is required"))
		}
	case TransportMulticastRelay:
		var missing []string
		if strings.TrimSpace(p.IPAddress) == "" {
			missing = append(missing, "multicast group")
		}
		if p.IPPort <= 0 || p.IPPort > 65535 {
			missing = append(missing, "port")
		}
		if strings.TrimSpace(p.OtherInfo) == "" {
			missing = append(missing, "delegate board id")
		}
		if len(missing) > 0 {
			return newError("prepare", InvalidArgument,
				fmt.Errorf("relay requires %s", strings.Join(missing, ", ")))
		}
	default:
		return newError("prepare", InvalidArgument, fmt.Errorf("unknown %s", p.Transport))
	}
	return nil
}

// ParseDelegateBoard parses the board id of the device feeding a relay.
func ParseDelegateBoard(s string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, newError("prepare", ConfigurationError,
			fmt.Errorf("delegate board id %q is not an integer", s))
	}
	return id, nil
}
