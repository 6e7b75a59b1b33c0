package serialport

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestablePort_ReadTimeout(t *testing.T) {
	p := NewTestablePort()
	require.NoError(t, p.SetReadTimeout(20*time.Millisecond))

	start := time.Now()
	n, err := p.Read(make([]byte, 1))
	assert.NoError(t, err)
	assert.Zero(t, n)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestTestablePort_ReadWakesOnData(t *testing.T) {
	p := NewTestablePort()
	require.NoError(t, p.SetReadTimeout(time.Second))

	go func() {
		time.Sleep(10 * time.Millisecond)
		p.AddReadData([]byte{0x42})
	}()

	b := make([]byte, 1)
	n, err := p.Read(b)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, byte(0x42), b[0])
}

func TestTestablePort_CloseUnblocksRead(t *testing.T) {
	p := NewTestablePort()

	done := make(chan error, 1)
	go func() {
		_, err := p.Read(make([]byte, 1))
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, p.Close())

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, ErrClosed))
	case <-time.After(time.Second):
		t.Fatal("read did not unblock on close")
	}
}

func TestTestablePort_ReadErrorOnce(t *testing.T) {
	p := NewTestablePort()
	p.ReadError = errors.New("framing error")
	p.AddReadData([]byte{1})

	_, err := p.Read(make([]byte, 1))
	assert.Error(t, err)

	n, err := p.Read(make([]byte, 1))
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTestablePort_ResetInputBuffer(t *testing.T) {
	p := NewTestablePort()
	p.AddReadData([]byte{1, 2, 3})
	require.NoError(t, p.ResetInputBuffer())

	assert.Zero(t, p.Pending())
	assert.Equal(t, 1, p.FlushCalls)
}

func TestTestablePort_ResetInputBufferError(t *testing.T) {
	p := NewTestablePort()
	p.AddReadData([]byte{1, 2, 3})
	p.ResetError = errors.New("flush failed")

	assert.Error(t, p.ResetInputBuffer())
	assert.Equal(t, 3, p.Pending(), "failed flush keeps buffered bytes")
}

func TestTestablePort_Write(t *testing.T) {
	p := NewTestablePort()
	n, err := p.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "abc", p.WriteBuffer.String())

	p.Close()
	_, err = p.Write([]byte("x"))
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestMockFactory(t *testing.T) {
	p := NewTestablePort()
	f := NewMockFactory(p)
	assert.Nil(t, f.LastCall())

	got, err := f.Open("/dev/ttyACM0", PortOptions{BaudRate: 9600})
	require.NoError(t, err)
	assert.Same(t, p, got)
	assert.Equal(t, "/dev/ttyACM0", f.LastCall().Path)
	assert.Equal(t, 9600, f.LastCall().Options.BaudRate)

	// a closed port is handed out again as open
	p.Close()
	_, err = f.Open("/dev/ttyACM0", PortOptions{})
	require.NoError(t, err)
	assert.False(t, p.IsClosed())
	assert.Equal(t, 2, f.Opens())

	f.Error = ErrBusy
	_, err = f.Open("/dev/ttyACM0", PortOptions{})
	assert.True(t, errors.Is(err, ErrBusy))
}
