package multicast

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/ipv4"

	"github.com/banshee-data/biosignal/internal/monitoring"
)

// DropCounter records samples that could not be published.
type DropCounter interface {
	AddDropped()
}

// Publisher sends samples to a multicast group as relay packets.
// It provides non-blocking publishing with drop tracking and logging.
type Publisher struct {
	conn        net.Conn
	channel     chan []byte
	stats       DropCounter
	logInterval time.Duration
	address     string
	logger      zerolog.Logger

	mu      sync.Mutex
	started bool
	closed  bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewPublisher creates a publisher that sends packets to group:port with a
// TTL of one hop and loopback enabled, so receivers on the same host see them.
func NewPublisher(group string, port int, stats DropCounter, logInterval time.Duration) (*Publisher, error) {
	if _, err := ParseGroup(group); err != nil {
		return nil, err
	}
	address := net.JoinHostPort(group, strconv.Itoa(port))
	raddr, err := net.ResolveUDPAddr("udp4", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve publish address: %w", err)
	}

	conn, err := net.DialUDP("udp4", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create publish connection: %w", err)
	}

	logger := monitoring.Logger().With().Str("component", "publisher").Str("group", address).Logger()
	mc := ipv4.NewPacketConn(conn)
	if err := mc.SetMulticastTTL(1); err != nil {
		logger.Warn().Err(err).Msg("failed to set multicast TTL")
	}
	if err := mc.SetMulticastLoopback(true); err != nil {
		logger.Warn().Err(err).Msg("failed to enable multicast loopback")
	}

	if logInterval <= 0 {
		logInterval = time.Minute
	}
	return newPublisher(conn, address, stats, logInterval, logger), nil
}

func newPublisher(conn net.Conn, address string, stats DropCounter, logInterval time.Duration, logger zerolog.Logger) *Publisher {
	return &Publisher{
		conn:        conn,
		channel:     make(chan []byte, 1000), // Buffer 1000 samples
		stats:       stats,
		logInterval: logInterval,
		address:     address,
		logger:      logger,
		stop:        make(chan struct{}),
	}
}

// Address returns the group:port the publisher sends to.
func (p *Publisher) Address() string {
	return p.address
}

// Start begins the goroutine that writes queued packets. Dropped writes are
// logged at most once per log interval. Start is a no-op after the first call.
func (p *Publisher) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		droppedCount := 0
		var lastError error
		ticker := time.NewTicker(p.logInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stop:
				return
			case packet := <-p.channel:
				if _, err := p.conn.Write(packet); err != nil {
					droppedCount++
					lastError = err
					if p.stats != nil {
						p.stats.AddDropped()
					}
				}
			case <-ticker.C:
				// Only log if we have dropped packets in this interval
				if droppedCount > 0 && lastError != nil {
					p.logger.Warn().Int("dropped", droppedCount).Err(lastError).Msg("dropped published samples")
					droppedCount = 0
					lastError = nil
				}
			}
		}
	}()

	p.logger.Info().Msg("publishing samples")
}

// PublishAsync queues a sample without blocking. If the queue is full or the
// publisher is closed, the sample is dropped and counted.
func (p *Publisher) PublishAsync(sample []float64) {
	packet := EncodeSample(sample)

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		p.drop()
		return
	}

	select {
	case p.channel <- packet:
	default:
		p.drop()
	}
}

func (p *Publisher) drop() {
	if p.stats != nil {
		p.stats.AddDropped()
	}
}

// Close stops the writer goroutine and closes the connection. Queued packets
// that were not yet written are discarded.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.stop)
	p.mu.Unlock()

	p.wg.Wait()
	return p.conn.Close()
}
