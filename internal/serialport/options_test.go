package serialport

import (
	"testing"

	"go.bug.st/serial"
)

func TestPortOptions_Normalise(t *testing.T) {
	tests := []struct {
		name    string
		opts    PortOptions
		want    int
		wantErr bool
	}{
		{name: "default speed", opts: PortOptions{}, want: DefaultBaudRate},
		{name: "explicit speed", opts: PortOptions{BaudRate: 115200}, want: 115200},
		{name: "negative speed", opts: PortOptions{BaudRate: -1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.opts.Normalise()
			if tt.wantErr {
				if err == nil {
					t.Errorf("Normalise(%+v) expected error", tt.opts)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalise() error = %v", err)
			}
			if got.BaudRate != tt.want {
				t.Errorf("BaudRate = %d, want %d", got.BaudRate, tt.want)
			}
		})
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	mode, err := PortOptions{}.SerialMode()
	if err != nil {
		t.Fatalf("SerialMode() error = %v", err)
	}
	want := serial.Mode{
		BaudRate: DefaultBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if *mode != want {
		t.Errorf("SerialMode() = %+v, want %+v", *mode, want)
	}

	if _, err := (PortOptions{BaudRate: -9600}).SerialMode(); err == nil {
		t.Error("expected error for negative baud rate")
	}
}
