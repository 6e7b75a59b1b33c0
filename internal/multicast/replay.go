package multicast

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

type replayFactory struct {
	path string
}

// NewReplayFactory returns a Factory whose sockets replay relay packets from
// a pcap capture instead of the network. Only UDP datagrams addressed to the
// joined group and port are returned, in capture order.
func NewReplayFactory(path string) Factory {
	return &replayFactory{path: path}
}

func (f *replayFactory) Join(group string, port int) (Socket, error) {
	ip, err := ParseGroup(group)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture %s: %w", f.path, err)
	}
	r, err := pcapgo.NewReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read capture header %s: %w", f.path, err)
	}

	return &replaySocket{
		file:  file,
		r:     r,
		group: ip,
		port:  layers.UDPPort(port),
		local: &net.UDPAddr{IP: ip, Port: port},
	}, nil
}

// replaySocket implements Socket over a pcap file.
type replaySocket struct {
	mu        sync.Mutex
	file      *os.File
	r         *pcapgo.Reader
	group     net.IP
	port      layers.UDPPort
	local     net.Addr
	deadline  time.Time
	closed    bool
	exhausted bool
}

// ReadPacket returns the next matching UDP payload. Once the capture is
// exhausted it waits for the read deadline and reports a timeout, so readers
// behave as they would on a quiet group.
func (s *replaySocket) ReadPacket(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.closed {
			return 0, net.ErrClosed
		}
		if s.exhausted {
			return 0, s.idle()
		}

		data, _, err := s.r.ReadPacketData()
		if errors.Is(err, io.EOF) {
			s.exhausted = true
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read capture: %w", err)
		}

		payload, ok := s.match(data)
		if !ok {
			continue
		}
		return copy(b, payload), nil
	}
}

// match decodes one captured frame and returns its UDP payload when it is
// addressed to the replayed group and port.
func (s *replaySocket) match(data []byte) ([]byte, bool) {
	pkt := gopacket.NewPacket(data, s.r.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})

	ip4, ok := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	if !ok || !ip4.DstIP.Equal(s.group) {
		return nil, false
	}
	udp, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
	if !ok || udp.DstPort != s.port {
		return nil, false
	}
	return udp.Payload, true
}

// idle sleeps until the deadline with the lock released, then returns a
// timeout error.
func (s *replaySocket) idle() error {
	if wait := time.Until(s.deadline); !s.deadline.IsZero() && wait > 0 {
		s.mu.Unlock()
		time.Sleep(wait)
		s.mu.Lock()
	}
	return &net.OpError{Op: "read", Net: "udp", Err: &timeoutError{}}
}

func (s *replaySocket) SetReadBuffer(int) error { return nil }

func (s *replaySocket) SetReadDeadline(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadline = t
	return nil
}

func (s *replaySocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}

func (s *replaySocket) LocalAddr() net.Addr {
	return s.local
}
