package acq

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/banshee-data/biosignal/internal/boards"
	"github.com/banshee-data/biosignal/internal/monitoring"
	"github.com/banshee-data/biosignal/internal/serialport"
	"github.com/banshee-data/biosignal/internal/timeutil"
)

// FreeEEG32 framing.
const (
	StartByte = 0xA0
	EndByte   = 0xC0

	// MaxScanBytes is larger than any frame the firmware is known to send.
	// Frame length varies between firmware versions, so the scanner looks
	// for the end/start marker pair instead of counting bytes.
	MaxScanBytes = 200
)

// FreeEEG32 analog front end defaults.
const (
	DefaultVref = 2.5
	DefaultGain = 8.0
)

// readErrorBackoff spaces out retries after a failed serial read.
const readErrorBackoff = 10 * time.Millisecond

// MinFrameBytes is the shortest frame carrying the given number of
// channels: one marker byte and three bytes per channel.
func MinFrameBytes(channels int) int {
	return 1 + 3*channels
}

// Scale converts a raw 24-bit reading to microvolts.
func Scale(vref, gain float64) float64 {
	return vref / float64(1<<23-1) / gain * 1e6
}

// Int24 decodes a big-endian two's complement 24-bit integer.
func Int24(b []byte) int32 {
	return int32(uint32(b[0])<<24|uint32(b[1])<<16|uint32(b[2])<<8) >> 8
}

// DecodeFrame builds a sample from frame: the marker byte goes to the
// package row, each channel reading is scaled into its channel row and ts
// fills the timestamp row.
func DecodeFrame(frame []byte, layout boards.ChannelLayout, scale, ts float64) ([]float64, error) {
	if n := MinFrameBytes(layout.Channels()); len(frame) < n {
		return nil, fmt.Errorf("frame has %d bytes, need %d", len(frame), n)
	}
	sample := make([]float64, layout.NumRows)
	sample[layout.PackageNumRow] = float64(frame[0])
	for i, row := range layout.EEGChannels {
		sample[row] = scale * float64(Int24(frame[1+3*i:]))
	}
	sample[layout.TimestampRow] = ts
	return sample, nil
}

// FrameScanner finds frames in a serial byte stream. A frame is complete
// when an end marker at or beyond the minimum frame length is followed by a
// start marker; the frame is everything before the end marker.
type FrameScanner struct {
	r        io.Reader
	minFrame int
	buf      [MaxScanBytes]byte
	pos      int
}

// NewFrameScanner returns a scanner for frames of at least minFrame bytes.
func NewFrameScanner(r io.Reader, minFrame int) *FrameScanner {
	return &FrameScanner{r: r, minFrame: minFrame}
}

// Next reads one byte at a time until it finds a frame, the scan window of
// MaxScanBytes-2 bytes is used up, or alive is cleared. It returns the frame
// in the first case and nil otherwise. The frame is only valid until the
// next call.
//
// A read error is returned as is and keeps the partial window, so the
// caller may retry. Reads that time out with no data do not advance the
// window.
func (sc *FrameScanner) Next(alive *atomic.Bool) ([]byte, error) {
	if sc.pos >= MaxScanBytes-2 {
		sc.pos = 0
	}
	for alive.Load() && sc.pos < MaxScanBytes-2 {
		n, err := sc.r.Read(sc.buf[sc.pos : sc.pos+1])
		if err != nil {
			return nil, err
		}
		if n == 0 {
			continue
		}
		if sc.pos > sc.minFrame && sc.buf[sc.pos] == StartByte && sc.buf[sc.pos-1] == EndByte {
			frame := sc.buf[:sc.pos-1]
			sc.pos = 0
			return frame, nil
		}
		sc.pos++
	}
	return nil, nil
}

// Pos returns the number of bytes in the current scan window.
func (sc *FrameScanner) Pos() int {
	return sc.pos
}

// frameDriver acquires from a FreeEEG32 over a serial line.
type frameDriver struct {
	factory serialport.Factory
	path    string
	timeout time.Duration
	board   int
	vref    float64
	gain    float64

	registry *boards.Registry
	clock    timeutil.Clock
	stats    *monitoring.Stats
	logger   zerolog.Logger

	port serialport.Port
	lay  boards.ChannelLayout
}

func newFrameDriver(s *Session) *frameDriver {
	return &frameDriver{
		factory:  s.serialFactory,
		path:     s.params.SerialPort,
		timeout:  s.readTimeout,
		board:    boards.FreeEEG32,
		vref:     s.vref,
		gain:     s.gain,
		registry: s.registry,
		clock:    s.clock,
		stats:    s.stats,
		logger:   s.logger.With().Str("port", s.params.SerialPort).Logger(),
	}
}

func (d *frameDriver) open() error {
	if d.port != nil {
		return newError("prepare", ResourceBusy, fmt.Errorf("port %s already open", d.path))
	}
	lay, err := d.registry.Lookup(d.board)
	if err != nil {
		return newError("prepare", ConfigurationError, err)
	}

	d.logger.Trace().Msg("opening serial port")
	port, err := d.factory.Open(d.path, serialport.PortOptions{BaudRate: serialport.DefaultBaudRate})
	if err != nil {
		if errors.Is(err, serialport.ErrBusy) {
			return newError("prepare", ResourceBusy, err)
		}
		return newError("prepare", ResourceUnavailable, err)
	}
	d.logger.Trace().Msg("serial port opened")

	if err := serialport.ApplySettings(port, d.timeout, serialport.DefaultBaudRate); err != nil {
		if cerr := port.Close(); cerr != nil {
			d.logger.Warn().Err(cerr).Msg("failed to close serial port")
		}
		return newError("prepare", ConfigurationError, fmt.Errorf("failed to apply port settings: %w", err))
	}

	d.port = port
	d.lay = lay
	return nil
}

func (d *frameDriver) isOpen() bool {
	return d.port != nil
}

// beforeStart drops bytes buffered while nobody was reading.
func (d *frameDriver) beforeStart() error {
	return d.port.ResetInputBuffer()
}

func (d *frameDriver) run(alive *atomic.Bool, sink Sink) {
	scanner := NewFrameScanner(d.port, MinFrameBytes(d.lay.Channels()))
	scale := Scale(d.vref, d.gain)
	firstFrame := true

	for alive.Load() {
		frame, err := scanner.Next(alive)
		if err != nil {
			if errors.Is(err, serialport.ErrClosed) {
				d.logger.Error().Err(err).Msg("serial port closed while streaming")
				return
			}
			d.stats.AddReadError()
			d.logger.Trace().Err(err).Int("pos", scanner.Pos()).Msg("serial read failed")
			time.Sleep(readErrorBackoff)
			continue
		}
		if frame == nil {
			if alive.Load() {
				d.stats.AddResync()
			}
			d.logger.Trace().Int("pos", scanner.Pos()).Bool("keep_alive", alive.Load()).Msg("no frame in scan window")
			continue
		}

		// The first frame may have started before the scanner did.
		if firstFrame {
			firstFrame = false
			d.stats.AddDiscarded()
			continue
		}

		sample, err := DecodeFrame(frame, d.lay, scale, timeutil.UnixSeconds(d.clock.Now()))
		if err != nil {
			d.logger.Trace().Err(err).Msg("failed to decode frame")
			continue
		}
		sink.Push(sample)
		d.stats.AddSample(len(frame))
	}
}

func (d *frameDriver) close() error {
	port := d.port
	d.port = nil
	return port.Close()
}

func (d *frameDriver) layout() boards.ChannelLayout {
	return d.lay
}
