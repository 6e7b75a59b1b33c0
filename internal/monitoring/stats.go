package monitoring

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Snapshot is a point-in-time copy of acquisition counters.
type Snapshot struct {
	Samples      int64         `json:"samples"`
	Bytes        int64         `json:"bytes"`
	Discarded    int64         `json:"discarded"`
	Resyncs      int64         `json:"resyncs"`
	ShortPackets int64         `json:"short_packets"`
	ReadErrors   int64         `json:"read_errors"`
	Dropped      int64         `json:"dropped"`
	Elapsed      time.Duration `json:"elapsed"`
}

// Stats tracks acquisition statistics with thread-safe operations. The worker
// goroutine writes, while the controller and debug handlers read.
type Stats struct {
	mu        sync.Mutex
	cur       Snapshot
	total     Snapshot
	lastReset time.Time
}

// NewStats creates a new Stats instance
func NewStats() *Stats {
	return &Stats{
		lastReset: time.Now(),
	}
}

// AddSample records one pushed sample decoded from n transport bytes.
func (s *Stats) AddSample(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.Samples++
	s.cur.Bytes += int64(n)
	s.total.Samples++
	s.total.Bytes += int64(n)
}

// AddDiscarded records a complete frame that was intentionally not pushed.
func (s *Stats) AddDiscarded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.Discarded++
	s.total.Discarded++
}

// AddResync records a scan window that ended without a frame boundary.
func (s *Stats) AddResync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.Resyncs++
	s.total.Resyncs++
}

// AddShortPacket records a datagram whose size did not match the layout.
func (s *Stats) AddShortPacket() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.ShortPackets++
	s.total.ShortPackets++
}

// AddReadError records a failed transport read.
func (s *Stats) AddReadError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.ReadErrors++
	s.total.ReadErrors++
}

// AddDropped records a sample that could not be re-streamed.
func (s *Stats) AddDropped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.Dropped++
	s.total.Dropped++
}

// Total returns the counters accumulated since creation.
func (s *Stats) Total() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.total
	return t
}

// GetAndReset returns the counters since the last reset and clears them.
func (s *Stats) GetAndReset() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	snap := s.cur
	snap.Elapsed = now.Sub(s.lastReset)
	s.cur = Snapshot{}
	s.lastReset = now
	return snap
}

// LogStats logs per-second rates for the interval since the last call.
func (s *Stats) LogStats(l zerolog.Logger) {
	snap := s.GetAndReset()
	if snap.Samples == 0 && snap.Resyncs == 0 && snap.ShortPackets == 0 && snap.Dropped == 0 {
		return
	}
	secs := snap.Elapsed.Seconds()
	if secs <= 0 {
		secs = 1
	}

	ev := l.Info().
		Float64("samples_per_sec", float64(snap.Samples)/secs).
		Float64("kb_per_sec", float64(snap.Bytes)/secs/1024)
	if snap.Discarded > 0 {
		ev = ev.Int64("discarded", snap.Discarded)
	}
	if snap.Resyncs > 0 {
		ev = ev.Int64("resyncs", snap.Resyncs)
	}
	if snap.ShortPackets > 0 {
		ev = ev.Int64("short_packets", snap.ShortPackets)
	}
	if snap.Dropped > 0 {
		ev = ev.Int64("dropped_on_stream", snap.Dropped)
	}
	ev.Msg("acquisition stats")
}
