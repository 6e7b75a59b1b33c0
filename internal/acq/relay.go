package acq

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/banshee-data/biosignal/internal/boards"
	"github.com/banshee-data/biosignal/internal/monitoring"
	"github.com/banshee-data/biosignal/internal/multicast"
)

// DefaultReadBuffer is the socket receive buffer requested for relay groups.
const DefaultReadBuffer = 2 << 20

// relayDriver receives samples that another session re-streams to a
// multicast group. Packets are already scaled and timestamped.
type relayDriver struct {
	factory  multicast.Factory
	group    string
	port     int
	delegate string
	timeout  time.Duration
	rcvBuf   int

	registry *boards.Registry
	stats    *monitoring.Stats
	logger   zerolog.Logger

	socket multicast.Socket
	lay    boards.ChannelLayout
}

func newRelayDriver(s *Session) *relayDriver {
	return &relayDriver{
		factory:  s.socketFactory,
		group:    s.params.IPAddress,
		port:     s.params.IPPort,
		delegate: s.params.OtherInfo,
		timeout:  s.readTimeout,
		rcvBuf:   DefaultReadBuffer,
		registry: s.registry,
		stats:    s.stats,
		logger: s.logger.With().
			Str("group", s.params.IPAddress).
			Int("port", s.params.IPPort).
			Logger(),
	}
}

func (d *relayDriver) open() error {
	if d.socket != nil {
		return newError("prepare", ResourceBusy, errors.New("multicast socket already open"))
	}

	id, err := ParseDelegateBoard(d.delegate)
	if err != nil {
		d.logger.Error().Msg("write the board id of the streaming board to other info")
		return err
	}
	lay, err := d.registry.Lookup(id)
	if err != nil {
		return newError("prepare", ConfigurationError, err)
	}
	if lay.NumRows == 0 {
		return newError("prepare", ConfigurationError, fmt.Errorf("board %d (%s) has no sample layout", id, lay.Name))
	}

	sock, err := d.factory.Join(d.group, d.port)
	if err != nil {
		if errors.Is(err, multicast.ErrBusy) {
			return newError("prepare", ResourceBusy, err)
		}
		return newError("prepare", ResourceUnavailable, fmt.Errorf("failed to init socket: %w", err))
	}
	if err := sock.SetReadBuffer(d.rcvBuf); err != nil {
		if cerr := sock.Close(); cerr != nil {
			d.logger.Warn().Err(cerr).Msg("failed to close multicast socket")
		}
		return newError("prepare", ConfigurationError, fmt.Errorf("failed to set receive buffer to %d bytes: %w", d.rcvBuf, err))
	}

	d.socket = sock
	d.lay = lay
	d.logger.Debug().Int("delegate", id).Stringer("local", sock.LocalAddr()).Msg("joined relay group")
	return nil
}

func (d *relayDriver) isOpen() bool {
	return d.socket != nil
}

func (d *relayDriver) beforeStart() error {
	return nil
}

func (d *relayDriver) run(alive *atomic.Bool, sink Sink) {
	want := d.lay.NumRows * multicast.SampleBytes
	// One spare byte so an oversized datagram reads as a size mismatch
	// instead of being silently truncated to the expected length.
	buf := make([]byte, want+1)

	for alive.Load() {
		if err := d.socket.SetReadDeadline(time.Now().Add(d.timeout)); err != nil {
			d.logger.Trace().Err(err).Msg("failed to set read deadline")
		}
		n, err := d.socket.ReadPacket(buf)
		if err != nil {
			if multicast.IsTimeout(err) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				d.logger.Error().Err(err).Msg("multicast socket closed while streaming")
				return
			}
			d.stats.AddReadError()
			d.logger.Trace().Err(err).Msg("multicast read failed")
			time.Sleep(readErrorBackoff)
			continue
		}
		if n != want {
			d.stats.AddShortPacket()
			d.logger.Trace().Int("want", want).Int("read", n).Msg("unexpected packet size")
			continue
		}

		sample := make([]float64, d.lay.NumRows)
		multicast.DecodeSample(buf[:n], sample)
		sink.Push(sample)
		d.stats.AddSample(n)
	}
}

func (d *relayDriver) close() error {
	sock := d.socket
	d.socket = nil
	return sock.Close()
}

func (d *relayDriver) layout() boards.ChannelLayout {
	return d.lay
}
