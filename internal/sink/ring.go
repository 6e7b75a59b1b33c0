// Package sink stores decoded samples for readers and optionally re-streams
// them to a multicast group.
package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/biosignal/internal/boards"
	"github.com/banshee-data/biosignal/internal/multicast"
)

// MaxCaptureSamples bounds the ring: one day at 250 samples per second.
const MaxCaptureSamples = 86400 * 250

// ErrInvalidBufferSize is returned when the requested capacity is outside
// (0, MaxCaptureSamples].
var ErrInvalidBufferSize = errors.New("invalid buffer size")

// Streamer receives every pushed sample.
type Streamer interface {
	PublishAsync(sample []float64)
	Close() error
}

// Option configures a Ring.
type Option func(r *Ring)

// WithDropCounter counts samples the streamer could not send.
func WithDropCounter(c multicast.DropCounter) Option {
	return func(r *Ring) {
		r.drops = c
	}
}

// WithStreamer replaces the streamer built from the streamer spec.
func WithStreamer(s Streamer) Option {
	return func(r *Ring) {
		r.streamer = s
	}
}

// WithStatsInterval sets how often streamer drops are logged.
func WithStatsInterval(d time.Duration) Option {
	return func(r *Ring) {
		r.logInterval = d
	}
}

// Ring is a bounded FIFO of samples. One goroutine pushes while any number
// of readers take views or drain.
type Ring struct {
	mu       sync.Mutex
	samples  [][]float64
	capacity int
	head     int // index of the oldest sample
	count    int
	fields   int
	streamer Streamer
	closed   bool

	drops       multicast.DropCounter
	logInterval time.Duration
	cancel      context.CancelFunc
}

// New creates a ring holding up to bufferSize samples of the layout's width.
// A non-empty streamerSpec also starts a streamer.
func New(bufferSize int, streamerSpec string, layout boards.ChannelLayout, opts ...Option) (*Ring, error) {
	if bufferSize <= 0 || bufferSize > MaxCaptureSamples {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBufferSize, bufferSize)
	}
	spec, err := ParseStreamerSpec(streamerSpec)
	if err != nil {
		return nil, err
	}

	r := &Ring{
		capacity:    bufferSize,
		fields:      layout.NumRows,
		logInterval: time.Minute,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.streamer == nil && spec.Enabled() {
		pub, err := multicast.NewPublisher(spec.Group, spec.Port, r.drops, r.logInterval)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrStreamerUnavailable, spec, err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		pub.Start(ctx)
		r.streamer = pub
		r.cancel = cancel
	}
	return r, nil
}

// Push appends a copy of sample, overwriting the oldest entry when full.
// The copy is cut or zero-padded to the layout width. Pushes after Close are
// ignored.
func (r *Ring) Push(sample []float64) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	cp := make([]float64, r.fields)
	copy(cp, sample)
	if r.count == len(r.samples) && len(r.samples) < r.capacity {
		r.grow()
	}
	tail := (r.head + r.count) % len(r.samples)
	r.samples[tail] = cp
	if r.count < len(r.samples) {
		r.count++
	} else {
		r.head = (r.head + 1) % len(r.samples)
	}
	streamer := r.streamer
	r.mu.Unlock()

	if streamer != nil {
		streamer.PublishAsync(cp)
	}
}

// grow enlarges the storage towards capacity and moves the oldest sample to
// index zero. Caller holds mu.
func (r *Ring) grow() {
	size := min(max(2*len(r.samples), 256), r.capacity)
	buf := make([][]float64, size)
	for i := 0; i < r.count; i++ {
		buf[i] = r.samples[(r.head+i)%len(r.samples)]
	}
	r.samples = buf
	r.head = 0
}

// Count returns the number of buffered samples.
func (r *Ring) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Capacity returns the maximum number of buffered samples.
func (r *Ring) Capacity() int {
	return r.capacity
}

// Current returns the latest n samples without removing them, oldest first,
// as a fields x n matrix. n <= 0 or n larger than the count selects all
// buffered samples. It returns nil when the ring is empty.
func (r *Ring) Current(n int) *mat.Dense {
	r.mu.Lock()
	defer r.mu.Unlock()
	n = r.clamp(n)
	if n == 0 {
		return nil
	}
	return r.matrix(r.count-n, n)
}

// Drain removes and returns the oldest n samples as a fields x n matrix.
// n <= 0 drains everything. It returns nil when the ring is empty.
func (r *Ring) Drain(n int) *mat.Dense {
	r.mu.Lock()
	defer r.mu.Unlock()
	n = r.clamp(n)
	if n == 0 {
		return nil
	}
	m := r.matrix(0, n)
	for i := 0; i < n; i++ {
		r.samples[(r.head+i)%len(r.samples)] = nil
	}
	r.head = (r.head + n) % len(r.samples)
	r.count -= n
	return m
}

func (r *Ring) clamp(n int) int {
	if n <= 0 || n > r.count {
		n = r.count
	}
	if r.fields == 0 {
		return 0
	}
	return n
}

// matrix copies n samples starting at offset (relative to head) into a
// column-per-sample matrix. Caller holds mu.
func (r *Ring) matrix(offset, n int) *mat.Dense {
	m := mat.NewDense(r.fields, n, nil)
	for j := 0; j < n; j++ {
		s := r.samples[(r.head+offset+j)%len(r.samples)]
		m.SetCol(j, s)
	}
	return m
}

// Close stops the streamer. Buffered samples stay readable.
func (r *Ring) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	streamer := r.streamer
	r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}
	if streamer != nil {
		return streamer.Close()
	}
	return nil
}
