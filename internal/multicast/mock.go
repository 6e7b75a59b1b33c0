package multicast

import (
	"net"
	"sync"
	"time"
)

// MockSocket implements Socket for testing. Reads return queued packets in
// order; with nothing queued they wait until the read deadline and then
// report a timeout, like a quiet group would.
type MockSocket struct {
	mu sync.Mutex

	// Packets holds the packets to return from ReadPacket.
	Packets [][]byte
	// ReadIndex tracks the current position in Packets.
	ReadIndex int
	// Closed indicates whether Close was called.
	Closed bool
	// CloseCalls counts Close calls.
	CloseCalls int
	// ReadCalls counts ReadPacket calls.
	ReadCalls int
	// ReadBufferSize holds the value set by SetReadBuffer.
	ReadBufferSize int
	// ReadDeadline holds the value set by SetReadDeadline.
	ReadDeadline time.Time
	// LocalAddress is returned by LocalAddr.
	LocalAddress *net.UDPAddr
	// ReadError is returned on the next ReadPacket call if set.
	ReadError error
	// SetReadBufferError is returned by SetReadBuffer if set.
	SetReadBufferError error

	notify chan struct{}
}

// NewMockSocket creates a new MockSocket with the given packets.
func NewMockSocket(packets ...[]byte) *MockSocket {
	return &MockSocket{
		Packets: packets,
		LocalAddress: &net.UDPAddr{
			IP:   net.IPv4zero,
			Port: 6677,
		},
		notify: make(chan struct{}, 1),
	}
}

// AddPacket queues a packet and wakes a waiting reader.
func (m *MockSocket) AddPacket(b []byte) {
	m.mu.Lock()
	m.Packets = append(m.Packets, b)
	m.mu.Unlock()
	m.wake()
}

func (m *MockSocket) wake() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// ReadPacket returns the next packet from the mock buffer.
func (m *MockSocket) ReadPacket(b []byte) (int, error) {
	m.mu.Lock()
	m.ReadCalls++
	deadline := m.ReadDeadline
	m.mu.Unlock()

	var expired <-chan time.Time
	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		expired = timer.C
	}

	for {
		m.mu.Lock()
		if m.Closed {
			m.mu.Unlock()
			return 0, net.ErrClosed
		}
		if m.ReadError != nil {
			err := m.ReadError
			m.ReadError = nil
			m.mu.Unlock()
			return 0, err
		}
		if m.ReadIndex < len(m.Packets) {
			pkt := m.Packets[m.ReadIndex]
			m.ReadIndex++
			m.mu.Unlock()
			return copy(b, pkt), nil
		}
		m.mu.Unlock()

		if expired == nil {
			return 0, &net.OpError{Op: "read", Net: "udp", Err: &timeoutError{}}
		}
		select {
		case <-m.notify:
		case <-expired:
			return 0, &net.OpError{Op: "read", Net: "udp", Err: &timeoutError{}}
		}
	}
}

// SetReadError makes the next ReadPacket return err.
func (m *MockSocket) SetReadError(err error) {
	m.mu.Lock()
	m.ReadError = err
	m.mu.Unlock()
	m.wake()
}

// SetReadBuffer records the buffer size.
func (m *MockSocket) SetReadBuffer(bytes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetReadBufferError != nil {
		return m.SetReadBufferError
	}
	m.ReadBufferSize = bytes
	return nil
}

// SetReadDeadline records the deadline.
func (m *MockSocket) SetReadDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadDeadline = t
	return nil
}

// Close marks the socket as closed.
func (m *MockSocket) Close() error {
	m.mu.Lock()
	m.Closed = true
	m.CloseCalls++
	m.mu.Unlock()
	m.wake()
	return nil
}

// IsClosed reports whether Close has been called.
func (m *MockSocket) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Closed
}

// Consumed reports how many queued packets have been read.
func (m *MockSocket) Consumed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ReadIndex
}

// LocalAddr returns the mock local address.
func (m *MockSocket) LocalAddr() net.Addr {
	return m.LocalAddress
}

// MockFactory implements Factory for testing.
type MockFactory struct {
	mu sync.Mutex
	// Socket is the socket to return from Join.
	Socket *MockSocket
	// Error is returned by Join if set.
	Error error
	// JoinCalls records all Join calls.
	JoinCalls []MockJoinCall
}

// MockJoinCall records a call to Join.
type MockJoinCall struct {
	Group string
	Port  int
}

// NewMockFactory creates a new MockFactory.
func NewMockFactory(socket *MockSocket) *MockFactory {
	return &MockFactory{Socket: socket}
}

// Join returns the configured mock socket, reopened if a previous session
// closed it.
func (f *MockFactory) Join(group string, port int) (Socket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.JoinCalls = append(f.JoinCalls, MockJoinCall{Group: group, Port: port})
	if f.Error != nil {
		return nil, f.Error
	}
	f.Socket.mu.Lock()
	f.Socket.Closed = false
	f.Socket.mu.Unlock()
	return f.Socket, nil
}

// Joins returns the number of Join calls made so far.
func (f *MockFactory) Joins() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.JoinCalls)
}

// timeoutError implements net.Error for timeout simulation.
type timeoutError struct{}

func (e *timeoutError) Error() string   { return "i/o timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }
