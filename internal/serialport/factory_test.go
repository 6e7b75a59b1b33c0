package serialport

import (
	"fmt"
	"testing"
)

func TestNewFactory_Open_InvalidPath(t *testing.T) {
	// We can't open a real serial device in a unit test, but a missing path
	// must fail without returning a port.
	port, err := NewFactory().Open("/dev/nonexistent-serial-port-12345", PortOptions{})
	if err == nil {
		port.Close()
		t.Fatal("expected error when opening non-existent serial port")
	}
	if port != nil {
		t.Error("expected nil port when error is returned")
	}
}

func TestNewFactory_Open_InvalidOptions(t *testing.T) {
	_, err := NewFactory().Open("/dev/null", PortOptions{BaudRate: -1})
	if err == nil {
		t.Fatal("expected error for invalid options")
	}
}

func TestTranslateError(t *testing.T) {
	if translateError(nil) != nil {
		t.Error("nil error should stay nil")
	}

	plain := fmt.Errorf("plain")
	if got := translateError(plain); got != plain {
		t.Errorf("unrelated error changed: %v", got)
	}
}
