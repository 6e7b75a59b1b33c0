package multicast

import (
	"errors"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGroup(t *testing.T) {
	ip, err := ParseGroup("225.1.1.1")
	require.NoError(t, err)
	assert.Equal(t, net.IPv4(225, 1, 1, 1).To4(), ip)

	for _, bad := range []string{"", "not-an-ip", "192.168.1.10", "ff02::1"} {
		_, err := ParseGroup(bad)
		assert.Error(t, err, bad)
	}
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(&net.OpError{Op: "read", Net: "udp", Err: &timeoutError{}}))
	assert.True(t, IsTimeout(os.ErrDeadlineExceeded))
	assert.False(t, IsTimeout(errors.New("boom")))
	assert.False(t, IsTimeout(nil))
}

func TestRealFactory_InvalidGroup(t *testing.T) {
	_, err := NewFactory("").Join("10.0.0.1", 6677)
	assert.Error(t, err)
}

func TestRealFactory_UnknownInterface(t *testing.T) {
	_, err := NewFactory("no-such-iface0").Join("225.1.1.1", 6677)
	assert.Error(t, err)
}

func TestRealFactory_JoinAndTimeout(t *testing.T) {
	s, err := NewFactory("").Join("239.255.42.99", 0)
	if err != nil {
		t.Skipf("multicast join unavailable in this environment: %v", err)
	}
	defer s.Close()

	require.NotNil(t, s.LocalAddr())
	require.NoError(t, s.SetReadDeadline(time.Now().Add(20*time.Millisecond)))
	_, err = s.ReadPacket(make([]byte, 64))
	assert.True(t, IsTimeout(err), "expected timeout, got %v", err)
}

func TestMockSocket_ReadOrderAndTimeout(t *testing.T) {
	m := NewMockSocket([]byte{1, 2}, []byte{3})
	b := make([]byte, 8)

	n, err := m.ReadPacket(b)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, b[:n])

	n, err = m.ReadPacket(b)
	require.NoError(t, err)
	assert.Equal(t, []byte{3}, b[:n])

	require.NoError(t, m.SetReadDeadline(time.Now().Add(10*time.Millisecond)))
	_, err = m.ReadPacket(b)
	assert.True(t, IsTimeout(err))
	assert.Equal(t, 2, m.Consumed())
}

func TestMockSocket_AddPacketWakesReader(t *testing.T) {
	m := NewMockSocket()
	require.NoError(t, m.SetReadDeadline(time.Now().Add(time.Second)))

	go func() {
		time.Sleep(10 * time.Millisecond)
		m.AddPacket([]byte{9})
	}()

	b := make([]byte, 4)
	n, err := m.ReadPacket(b)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMockSocket_Closed(t *testing.T) {
	m := NewMockSocket([]byte{1})
	require.NoError(t, m.Close())
	_, err := m.ReadPacket(make([]byte, 4))
	assert.True(t, errors.Is(err, net.ErrClosed))
}

func TestMockFactory(t *testing.T) {
	m := NewMockSocket()
	f := NewMockFactory(m)

	s, err := f.Join("225.1.1.1", 6677)
	require.NoError(t, err)
	assert.Same(t, m, s)
	assert.Equal(t, []MockJoinCall{{Group: "225.1.1.1", Port: 6677}}, f.JoinCalls)

	m.Close()
	_, err = f.Join("225.1.1.1", 6677)
	require.NoError(t, err)
	assert.False(t, m.IsClosed())

	f.Error = ErrBusy
	_, err = f.Join("225.1.1.1", 6677)
	assert.True(t, errors.Is(err, ErrBusy))
	assert.Equal(t, 3, f.Joins())
}
