package serialport

import (
	"bytes"
	"sync"
	"time"
)

// TestablePort implements Port with configurable behaviour for testing.
// Reads block until data arrives, the port closes, or the read timeout
// elapses, mirroring a real line configured with SetReadTimeout.
type TestablePort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer

	// ReadError is returned by the next Read call if set
	ReadError error

	// SetTimeoutError is returned by SetReadTimeout if set
	SetTimeoutError error

	// SetBaudError is returned by SetBaudRate if set
	SetBaudError error

	// ResetError is returned by ResetInputBuffer if set
	ResetError error

	// CloseError is returned by Close if set
	CloseError error

	// Closed indicates whether Close was called
	Closed bool

	// CloseCalls records the number of Close calls
	CloseCalls int

	// ReadCalls records the number of Read calls
	ReadCalls int

	// FlushCalls records the number of ResetInputBuffer calls
	FlushCalls int

	// ReadTimeout is the current read timeout
	ReadTimeout time.Duration

	// BaudRate is the last rate applied through SetBaudRate
	BaudRate int

	// NoLineSettings makes TimeoutOnly report true
	NoLineSettings bool

	notify chan struct{}
}

// NewTestablePort creates a new TestablePort for testing.
func NewTestablePort() *TestablePort {
	return &TestablePort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
		notify:      make(chan struct{}, 1),
	}
}

func (t *TestablePort) wake() {
	select {
	case t.notify <- struct{}{}:
	default:
	}
}

// Read reads from the read buffer, waiting up to the read timeout for data.
// A zero timeout waits until data arrives or the port closes.
func (t *TestablePort) Read(p []byte) (int, error) {
	t.mu.Lock()
	t.ReadCalls++
	timeout := t.ReadTimeout
	t.mu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		t.mu.Lock()
		if t.Closed {
			t.mu.Unlock()
			return 0, ErrClosed
		}
		if t.ReadError != nil {
			err := t.ReadError
			t.ReadError = nil
			t.mu.Unlock()
			return 0, err
		}
		if t.ReadBuffer.Len() > 0 {
			n, err := t.ReadBuffer.Read(p)
			t.mu.Unlock()
			return n, err
		}
		t.mu.Unlock()

		select {
		case <-t.notify:
		case <-expired:
			return 0, nil
		}
	}
}

// Write writes to the write buffer.
func (t *TestablePort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Closed {
		return 0, ErrClosed
	}
	return t.WriteBuffer.Write(p)
}

// Close marks the port as closed and wakes any blocked reader.
func (t *TestablePort) Close() error {
	t.mu.Lock()
	t.Closed = true
	t.CloseCalls++
	err := t.CloseError
	t.mu.Unlock()
	t.wake()
	return err
}

// SetReadTimeout implements Port.
func (t *TestablePort) SetReadTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.SetTimeoutError != nil {
		return t.SetTimeoutError
	}
	t.ReadTimeout = timeout
	return nil
}

// ResetInputBuffer discards any unread data.
func (t *TestablePort) ResetInputBuffer() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.FlushCalls++
	if t.ResetError != nil {
		return t.ResetError
	}
	t.ReadBuffer.Reset()
	return nil
}

// SetBaudRate implements Port.
func (t *TestablePort) SetBaudRate(baud int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.SetBaudError != nil {
		return t.SetBaudError
	}
	t.BaudRate = baud
	return nil
}

// TimeoutOnly implements Port.
func (t *TestablePort) TimeoutOnly() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.NoLineSettings
}

// AddReadData adds data to be returned by subsequent Read calls.
func (t *TestablePort) AddReadData(data []byte) {
	t.mu.Lock()
	t.ReadBuffer.Write(data)
	t.mu.Unlock()
	t.wake()
}

// SetReadError makes the next Read return err.
func (t *TestablePort) SetReadError(err error) {
	t.mu.Lock()
	t.ReadError = err
	t.mu.Unlock()
	t.wake()
}

// IsClosed reports whether Close has been called.
func (t *TestablePort) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Closed
}

// Pending returns the number of unread bytes.
func (t *TestablePort) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ReadBuffer.Len()
}

// Reopen clears the closed flag so a factory can hand the port out again.
func (t *TestablePort) Reopen() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Closed = false
}

// MockFactory implements Factory for testing.
type MockFactory struct {
	mu sync.Mutex

	// Port is the port to return from Open
	Port *TestablePort

	// Error is returned by Open if set
	Error error

	// OpenCalls records all Open calls
	OpenCalls []MockOpenCall
}

// MockOpenCall records details of an Open call.
type MockOpenCall struct {
	Path    string
	Options PortOptions
}

// NewMockFactory creates a new MockFactory handing out port.
func NewMockFactory(port *TestablePort) *MockFactory {
	return &MockFactory{Port: port}
}

// Open returns the configured port or error. A port closed by an earlier
// session is reopened, as the OS would hand out a fresh handle.
func (f *MockFactory) Open(path string, opts PortOptions) (Port, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.OpenCalls = append(f.OpenCalls, MockOpenCall{Path: path, Options: opts})

	if f.Error != nil {
		return nil, f.Error
	}
	f.Port.Reopen()
	return f.Port, nil
}

// Opens returns the number of Open calls made so far.
func (f *MockFactory) Opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.OpenCalls)
}

// LastCall returns the most recent Open call, or nil if none.
func (f *MockFactory) LastCall() *MockOpenCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.OpenCalls) == 0 {
		return nil
	}
	return &f.OpenCalls[len(f.OpenCalls)-1]
}
