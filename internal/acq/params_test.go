package acq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTransport(t *testing.T) {
	tests := []struct {
		in      string
		want    Transport
		wantErr bool
	}{
		{"serial", TransportSerial, false},
		{"", TransportSerial, false},
		{"Relay", TransportMulticastRelay, false},
		{" multicast ", TransportMulticastRelay, false},
		{"bluetooth", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTransport(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "transport(9)", Transport(9).String())
}

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name string
		p    Params
		want Code
	}{
		{"serial ok", Params{Transport: TransportSerial, SerialPort: "COM3"}, Ok},
		{"serial missing path", Params{Transport: TransportSerial}, InvalidArgument},
		{"relay ok", Params{Transport: TransportMulticastRelay, IPAddress: "225.1.1.1", IPPort: 6677, OtherInfo: "17"}, Ok},
		{"relay bad delegate still validates", Params{Transport: TransportMulticastRelay, IPAddress: "225.1.1.1", IPPort: 6677, OtherInfo: "x"}, Ok},
		{"relay missing group", Params{Transport: TransportMulticastRelay, IPPort: 6677, OtherInfo: "17"}, InvalidArgument},
		{"relay port out of range", Params{Transport: TransportMulticastRelay, IPAddress: "225.1.1.1", IPPort: 70000, OtherInfo: "17"}, InvalidArgument},
		{"relay missing delegate", Params{Transport: TransportMulticastRelay, IPAddress: "225.1.1.1", IPPort: 6677}, InvalidArgument},
		{"unknown transport", Params{Transport: Transport(5)}, InvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.p.Validate()))
		})
	}
}

func TestParams_ValidateListsMissingFields(t *testing.T) {
	err := Params{Transport: TransportMulticastRelay}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multicast group, port, delegate board id")
}

func TestParseDelegateBoard(t *testing.T) {
	id, err := ParseDelegateBoard("17")
	require.NoError(t, err)
	assert.Equal(t, 17, id)

	id, err = ParseDelegateBoard(" -2 ")
	require.NoError(t, err)
	assert.Equal(t, -2, id)

	for _, in := range []string{"", "17a", "1.5", "seventeen"} {
		_, err := ParseDelegateBoard(in)
		assert.ErrorIs(t, err, ErrConfiguration, "input %q", in)
	}
}
