// Package acq runs acquisition sessions: a lifecycle controller that owns one
// transport and one background worker which decodes samples into a Sink.
package acq

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"tailscale.com/tsweb"

	"github.com/banshee-data/biosignal/internal/boards"
	"github.com/banshee-data/biosignal/internal/monitoring"
	"github.com/banshee-data/biosignal/internal/multicast"
	"github.com/banshee-data/biosignal/internal/serialport"
	"github.com/banshee-data/biosignal/internal/sink"
	"github.com/banshee-data/biosignal/internal/timeutil"
)

// DefaultReadTimeout bounds every blocking transport read, and so the time
// Stop waits for the worker.
const DefaultReadTimeout = time.Second

// State is the lifecycle state of a Session.
type State int32

const (
	Idle State = iota
	Prepared
	Streaming
	// Stopping is held while Stop waits for the worker to exit.
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Prepared:
		return "prepared"
	case Streaming:
		return "streaming"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Sink receives decoded samples. The worker is its only writer and never
// closes it.
type Sink interface {
	Push(sample []float64)
	Close() error
}

// SinkFactory builds the sink for one streaming run.
type SinkFactory func(bufferSize int, streamerSpec string, layout boards.ChannelLayout) (Sink, error)

// driver is the transport specific half of a session.
type driver interface {
	// open acquires and configures the transport.
	open() error
	// isOpen reports whether the transport is held.
	isOpen() bool
	// beforeStart runs once per Start, before the worker is spawned.
	beforeStart() error
	// run is the worker loop. It returns once alive is cleared or the
	// transport is gone.
	run(alive *atomic.Bool, sink Sink)
	// close releases the transport.
	close() error
	// layout returns the sample shape, valid once open succeeded.
	layout() boards.ChannelLayout
}

// Session controls one logical device connection.
type Session struct {
	params Params
	id     string

	serialFactory serialport.Factory
	socketFactory multicast.Factory
	registry      *boards.Registry
	newSink       SinkFactory
	clock         timeutil.Clock
	logger        zerolog.Logger
	vref          float64
	gain          float64
	readTimeout   time.Duration
	stats         *monitoring.Stats

	mu     sync.Mutex
	state  State
	driver driver
	sink   Sink
	done   chan struct{}

	// stopped is closed when an in-flight Stop finishes.
	stopped chan struct{}

	alive atomic.Bool
}

// Option configures a Session.
type Option func(s *Session) error

// WithSerialPortFactory sets how serial ports are opened.
func WithSerialPortFactory(f serialport.Factory) Option {
	return func(s *Session) error {
		s.serialFactory = f
		return nil
	}
}

// WithSocketFactory sets how multicast groups are joined.
func WithSocketFactory(f multicast.Factory) Option {
	return func(s *Session) error {
		s.socketFactory = f
		return nil
	}
}

// WithRegistry sets the board registry used to resolve layouts.
func WithRegistry(r *boards.Registry) Option {
	return func(s *Session) error {
		s.registry = r
		return nil
	}
}

// WithSinkFactory replaces the default ring buffer sink.
func WithSinkFactory(f SinkFactory) Option {
	return func(s *Session) error {
		s.newSink = f
		return nil
	}
}

// WithClock sets the clock used for sample timestamps.
func WithClock(c timeutil.Clock) Option {
	return func(s *Session) error {
		s.clock = c
		return nil
	}
}

// WithLogger sets the base logger. Session fields are added to it.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) error {
		s.logger = l
		return nil
	}
}

// WithScale sets the analog front end reference voltage and gain.
func WithScale(vref, gain float64) Option {
	return func(s *Session) error {
		if vref <= 0 || gain <= 0 {
			return fmt.Errorf("vref and gain must be positive, got %g and %g", vref, gain)
		}
		s.vref = vref
		s.gain = gain
		return nil
	}
}

// WithReadTimeout bounds each blocking transport read.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Session) error {
		if d <= 0 {
			return fmt.Errorf("read timeout must be positive, got %s", d)
		}
		s.readTimeout = d
		return nil
	}
}

// NewSession creates an idle session for p. No transport is touched until
// Prepare.
func NewSession(p Params, opts ...Option) (*Session, error) {
	s := &Session{
		params:      p,
		id:          uuid.NewString(),
		registry:    boards.Default(),
		clock:       timeutil.RealClock{},
		logger:      monitoring.Logger(),
		vref:        DefaultVref,
		gain:        DefaultGain,
		readTimeout: DefaultReadTimeout,
		stats:       monitoring.NewStats(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, newError("new session", InvalidArgument, err)
		}
	}
	s.logger = s.logger.With().
		Str("session", s.id).
		Stringer("transport", p.Transport).
		Logger()
	if s.newSink == nil {
		s.newSink = s.ringSink
	}

	switch p.Transport {
	case TransportSerial:
		if s.serialFactory == nil {
			s.serialFactory = serialport.NewFactory()
		}
		s.driver = newFrameDriver(s)
	case TransportMulticastRelay:
		if s.socketFactory == nil {
			s.socketFactory = multicast.NewFactory("")
		}
		s.driver = newRelayDriver(s)
	default:
		return nil, newError("new session", InvalidArgument, fmt.Errorf("unknown %s", p.Transport))
	}
	return s, nil
}

func (s *Session) ringSink(bufferSize int, streamerSpec string, layout boards.ChannelLayout) (Sink, error) {
	return sink.New(bufferSize, streamerSpec, layout, sink.WithDropCounter(s.stats))
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// Params returns the configuration the session was created with.
func (s *Session) Params() Params {
	return s.params
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Layout returns the sample layout. It is the zero value until Prepare
// succeeds.
func (s *Session) Layout() boards.ChannelLayout {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Idle {
		return boards.ChannelLayout{}
	}
	return s.driver.layout()
}

// Sink returns the sink of the current streaming run, or nil.
func (s *Session) Sink() Sink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sink
}

// Stats returns counters accumulated over the life of the session.
func (s *Session) Stats() monitoring.Snapshot {
	return s.stats.Total()
}

// LogStats logs counters for the interval since the previous call.
func (s *Session) LogStats() {
	s.stats.LogStats(s.logger)
}

// Prepare opens and configures the transport. It is a no-op once prepared.
func (s *Session) Prepare() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Idle {
		s.logger.Info().Msg("session is already prepared")
		return nil
	}
	if err := s.params.Validate(); err != nil {
		s.logger.Error().Err(err).Msg("invalid session parameters")
		return err
	}
	if err := s.driver.open(); err != nil {
		s.logger.Error().Err(err).Msg("failed to prepare session")
		return err
	}

	s.state = Prepared
	s.logger.Info().Str("board", s.driver.layout().Name).Msg("session prepared")
	return nil
}

// Start builds the sink and spawns the worker.
func (s *Session) Start(bufferSize int, streamerSpec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.awaitStopLocked()
	switch s.state {
	case Streaming:
		s.logger.Error().Msg("streaming thread already running")
		return newError("start", AlreadyRunning, nil)
	case Idle:
		return newError("start", ResourceUnavailable, errors.New("session is not prepared"))
	}

	snk, err := s.newSink(bufferSize, streamerSpec, s.driver.layout())
	if err != nil {
		s.logger.Error().Err(err).Int("buffer_size", bufferSize).Str("streamer", streamerSpec).Msg("failed to create sink")
		return newError("start", sinkErrorCode(err), err)
	}
	if err := s.driver.beforeStart(); err != nil {
		if cerr := snk.Close(); cerr != nil {
			s.logger.Warn().Err(cerr).Msg("failed to close sink")
		}
		return newError("start", GeneralError, err)
	}

	done := make(chan struct{})
	s.alive.Store(true)
	go func() {
		defer close(done)
		s.driver.run(&s.alive, snk)
	}()

	s.sink = snk
	s.done = done
	s.state = Streaming
	s.logger.Info().Int("buffer_size", bufferSize).Str("streamer", streamerSpec).Msg("streaming started")
	return nil
}

func sinkErrorCode(err error) Code {
	var e *Error
	switch {
	case errors.As(err, &e):
		return e.Code
	case errors.Is(err, sink.ErrInvalidBufferSize),
		errors.Is(err, sink.ErrInvalidStreamer),
		errors.Is(err, sink.ErrUnsupportedStreamer):
		return InvalidArgument
	case errors.Is(err, sink.ErrStreamerUnavailable):
		return ResourceUnavailable
	default:
		return GeneralError
	}
}

// Stop clears the liveness flag, waits for the worker to exit and closes
// the sink. It blocks for at most about one read timeout.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.awaitStopLocked()
	if s.state != Streaming {
		return newError("stop", NotRunning, nil)
	}
	s.stopLocked()
	return nil
}

// stopLocked joins the worker with mu released, so State, Layout and the
// debug page stay responsive for the up to one read timeout the join takes.
// The worker never takes mu.
func (s *Session) stopLocked() {
	s.alive.Store(false)
	done := s.done
	stopped := make(chan struct{})
	s.stopped = stopped
	s.state = Stopping

	s.mu.Unlock()
	<-done
	s.mu.Lock()

	if err := s.sink.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to close sink")
	}
	s.sink = nil
	s.done = nil
	s.stopped = nil
	s.state = Prepared
	close(stopped)
	s.logger.Info().Msg("streaming stopped")
}

// awaitStopLocked waits for a Stop running on another goroutine to finish.
func (s *Session) awaitStopLocked() {
	for s.state == Stopping {
		stopped := s.stopped
		s.mu.Unlock()
		<-stopped
		s.mu.Lock()
	}
}

// Done returns a channel that is closed when the worker of the current
// streaming run exits, either after Stop or because the transport closed
// underneath it. It is nil when the session is not streaming.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Streaming {
		return nil
	}
	return s.done
}

// Release stops streaming if needed and closes the transport. It is safe to
// call repeatedly and on a session that was never prepared; the session is
// Idle afterwards even when closing the transport reports an error.
func (s *Session) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.awaitStopLocked()
	if s.state == Streaming {
		s.stopLocked()
	}

	var err error
	if s.driver.isOpen() {
		if cerr := s.driver.close(); cerr != nil {
			s.logger.Warn().Err(cerr).Msg("failed to close transport")
			err = newError("release", GeneralError, cerr)
		}
	}
	if s.state != Idle {
		s.logger.Info().Msg("session released")
	}
	s.state = Idle
	return err
}

// Configure sends a board command. Neither transport accepts commands.
func (s *Session) Configure(command string) (string, error) {
	return "", newError("configure", UnsupportedOperation,
		fmt.Errorf("%s sessions do not accept commands", s.params.Transport))
}

type sessionStatus struct {
	ID        string               `json:"id"`
	Transport string               `json:"transport"`
	State     string               `json:"state"`
	Layout    boards.ChannelLayout `json:"layout"`
	Stats     monitoring.Snapshot  `json:"stats"`
}

// AttachAdminRoutes attaches session debugging endpoints to the given HTTP
// mux served at /debug/.
func (s *Session) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.KVFunc("Session state", func() any {
		return s.State().String()
	})
	debug.KVFunc("Samples", func() any {
		return s.Stats().Samples
	})
	debug.Handle("session", "acquisition session status", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := sessionStatus{
			ID:        s.id,
			Transport: s.params.Transport.String(),
			State:     s.State().String(),
			Layout:    s.Layout(),
			Stats:     s.Stats(),
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			http.Error(w, "Failed to encode status", http.StatusInternalServerError)
		}
	}))
}
