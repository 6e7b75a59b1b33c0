// Package multicast carries decoded samples between acquisition processes
// over an IPv4 multicast group: sockets that join a group and receive relay
// packets, a capture replay source, and a publisher that emits them.
package multicast

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/net/ipv4"
)

// ErrBusy is returned when the group port is already bound by another socket.
var ErrBusy = errors.New("multicast port busy")

// Socket defines the receive side of a joined multicast group.
// This abstraction enables unit testing without real network connections.
type Socket interface {
	// ReadPacket reads one datagram addressed to the group into b.
	ReadPacket(b []byte) (n int, err error)

	// SetReadBuffer sets the size of the operating system's receive buffer.
	SetReadBuffer(bytes int) error

	// SetReadDeadline sets the deadline for future ReadPacket calls.
	SetReadDeadline(t time.Time) error

	// Close leaves the group and closes the socket.
	Close() error

	// LocalAddr returns the local network address.
	LocalAddr() net.Addr
}

// Factory defines an interface for joining multicast groups.
// This abstraction enables dependency injection of socket creation.
type Factory interface {
	// Join binds the UDP port and joins group on it.
	Join(group string, port int) (Socket, error)
}

// IsTimeout reports whether err is a read deadline expiry.
func IsTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// ParseGroup validates an IPv4 multicast group address.
func ParseGroup(group string) (net.IP, error) {
	ip := net.ParseIP(group)
	if ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("invalid IPv4 address %q", group)
	}
	if !ip.IsMulticast() {
		return nil, fmt.Errorf("%s is not a multicast group", group)
	}
	return ip.To4(), nil
}

type realFactory struct {
	iface string
}

// NewFactory returns a Factory that joins groups on the named interface, or
// on the system default when iface is empty.
func NewFactory(iface string) Factory {
	return &realFactory{iface: iface}
}

func (f *realFactory) Join(group string, port int) (Socket, error) {
	ip, err := ParseGroup(group)
	if err != nil {
		return nil, err
	}

	var ifi *net.Interface
	if f.iface != "" {
		ifi, err = net.InterfaceByName(f.iface)
		if err != nil {
			return nil, fmt.Errorf("failed to find interface %q: %w", f.iface, err)
		}
	}

	c, err := net.ListenPacket("udp4", net.JoinHostPort("0.0.0.0", strconv.Itoa(port)))
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("%w: %v", ErrBusy, err)
		}
		return nil, fmt.Errorf("failed to listen on UDP port %d: %w", port, err)
	}

	pc := ipv4.NewPacketConn(c)
	groupAddr := &net.UDPAddr{IP: ip}
	if err := pc.JoinGroup(ifi, groupAddr); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to join group %s: %w", group, err)
	}

	s := &realSocket{conn: c.(*net.UDPConn), pc: pc, ifi: ifi, group: groupAddr}
	// Destination filtering needs IP_PKTINFO, which not every platform offers.
	if err := pc.SetControlMessage(ipv4.FlagDst, true); err == nil {
		s.filterDst = true
	}
	return s, nil
}

// realSocket wraps a UDP socket joined to one group.
type realSocket struct {
	conn      *net.UDPConn
	pc        *ipv4.PacketConn
	ifi       *net.Interface
	group     *net.UDPAddr
	filterDst bool
}

// ReadPacket reads the next datagram sent to the group. Datagrams for other
// groups sharing the port are skipped.
func (s *realSocket) ReadPacket(b []byte) (int, error) {
	for {
		n, cm, _, err := s.pc.ReadFrom(b)
		if err != nil {
			return 0, err
		}
		if s.filterDst && cm != nil && !cm.Dst.Equal(s.group.IP) {
			continue
		}
		return n, nil
	}
}

func (s *realSocket) SetReadBuffer(bytes int) error {
	return s.conn.SetReadBuffer(bytes)
}

func (s *realSocket) SetReadDeadline(t time.Time) error {
	return s.pc.SetReadDeadline(t)
}

func (s *realSocket) Close() error {
	_ = s.pc.LeaveGroup(s.ifi, s.group)
	return s.pc.Close()
}

func (s *realSocket) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}
