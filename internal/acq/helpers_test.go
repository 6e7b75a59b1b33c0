package acq

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/biosignal/internal/boards"
	"github.com/banshee-data/biosignal/internal/multicast"
	"github.com/banshee-data/biosignal/internal/serialport"
	"github.com/banshee-data/biosignal/internal/timeutil"
)

const testReadTimeout = 20 * time.Millisecond

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 250000000, time.UTC)

// recordingSink collects pushed samples.
type recordingSink struct {
	mu       sync.Mutex
	samples  [][]float64
	closed   int
	closeErr error
}

func (r *recordingSink) Push(sample []float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, sample)
}

func (r *recordingSink) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return r.closeErr
}

func (r *recordingSink) Samples() [][]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]float64(nil), r.samples...)
}

func (r *recordingSink) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

func (r *recordingSink) Closed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// blockingSink holds the worker inside Push until release is closed.
type blockingSink struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
	closed  atomic.Int32
}

func newBlockingSink() *blockingSink {
	return &blockingSink{entered: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingSink) Push([]float64) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
}

func (b *blockingSink) Close() error {
	b.closed.Add(1)
	return nil
}

func (b *blockingSink) New(int, string, boards.ChannelLayout) (Sink, error) {
	return b, nil
}

// sinkRecorder is a SinkFactory that hands out recordingSinks.
type sinkRecorder struct {
	mu      sync.Mutex
	sinks   []*recordingSink
	sizes   []int
	specs   []string
	layouts []boards.ChannelLayout
}

func (f *sinkRecorder) New(bufferSize int, streamerSpec string, layout boards.ChannelLayout) (Sink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &recordingSink{}
	f.sinks = append(f.sinks, s)
	f.sizes = append(f.sizes, bufferSize)
	f.specs = append(f.specs, streamerSpec)
	f.layouts = append(f.layouts, layout)
	return s, nil
}

func (f *sinkRecorder) Last() *recordingSink {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sinks) == 0 {
		return nil
	}
	return f.sinks[len(f.sinks)-1]
}

type serialFixture struct {
	session *Session
	port    *serialport.TestablePort
	factory *serialport.MockFactory
	sinks   *sinkRecorder
	clock   *timeutil.MockClock
}

func newSerialFixture(t *testing.T, opts ...Option) *serialFixture {
	t.Helper()
	f := &serialFixture{
		port:  serialport.NewTestablePort(),
		sinks: &sinkRecorder{},
		clock: timeutil.NewMockClock(testEpoch),
	}
	f.factory = serialport.NewMockFactory(f.port)

	base := []Option{
		WithSerialPortFactory(f.factory),
		WithSinkFactory(f.sinks.New),
		WithClock(f.clock),
		WithReadTimeout(testReadTimeout),
		WithLogger(zerolog.Nop()),
	}
	s, err := NewSession(Params{Transport: TransportSerial, SerialPort: "/dev/ttyFREEEEG"}, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Release() })
	f.session = s
	return f
}

type relayFixture struct {
	session *Session
	socket  *multicast.MockSocket
	factory *multicast.MockFactory
	sinks   *sinkRecorder
}

func newRelayFixture(t *testing.T, p Params, opts ...Option) *relayFixture {
	t.Helper()
	f := &relayFixture{
		socket: multicast.NewMockSocket(),
		sinks:  &sinkRecorder{},
	}
	f.factory = multicast.NewMockFactory(f.socket)

	base := []Option{
		WithSocketFactory(f.factory),
		WithSinkFactory(f.sinks.New),
		WithReadTimeout(testReadTimeout),
		WithLogger(zerolog.Nop()),
	}
	p.Transport = TransportMulticastRelay
	s, err := NewSession(p, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Release() })
	f.session = s
	return f
}

func relayParams() Params {
	return Params{
		Transport: TransportMulticastRelay,
		IPAddress: "225.1.1.1",
		IPPort:    6677,
		OtherInfo: "17",
	}
}

// testChannels returns 32 raw readings spanning negative and positive
// values whose encoding contains no end marker byte.
func testChannels() []int32 {
	raw := make([]int32, 32)
	for i := range raw {
		raw[i] = int32((i - 16) * 0x012345)
	}
	return raw
}

// encodeFrame builds a FreeEEG32 frame followed by the end/start marker pair.
func encodeFrame(marker byte, raw []int32) []byte {
	b := []byte{marker}
	for _, v := range raw {
		u := uint32(v) & 0xFFFFFF
		b = append(b, byte(u>>16), byte(u>>8), byte(u))
	}
	return append(b, EndByte, StartByte)
}
