package udp

import (
	"fmt"
	"github.com/Avi18971911/xray_forwarder/internal/xray/model"
	"go.uber.org/zap"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
)

const DefaultPort = 2000
const DefaultQueueSize = 1024

// DeliveryChannel forwards envelopes to the collector. Send outcome is not awaited:
// failures surface only in the logs.
type DeliveryChannel interface {
	Send(envelope model.Envelope)
	Close() error
}

type Stats struct {
	Written int64
	Dropped int64
	Failed  int64
}

type UDPChannelImpl struct {
	conn    net.Conn
	queue   chan model.Envelope
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	written atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
	logger  *zap.Logger
}

// NewUDPChannelImpl resolves the destination once and starts the single writer goroutine.
func NewUDPChannelImpl(
	host string,
	port int,
	queueSize int,
	logger *zap.Logger,
) (*UDPChannelImpl, error) {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	address := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.Dial("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to open UDP socket to %s: %w", address, err)
	}
	uc := &UDPChannelImpl{
		conn:   conn,
		queue:  make(chan model.Envelope, queueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	go uc.writeLoop()
	logger.Info("UDP delivery channel opened", zap.String("destination", conn.RemoteAddr().String()))
	return uc, nil
}

// Send enqueues the envelope and returns immediately. A full queue drops the envelope.
func (uc *UDPChannelImpl) Send(envelope model.Envelope) {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	if uc.closed {
		uc.dropped.Add(1)
		uc.logger.Warn("Dropping envelope, delivery channel is closed")
		return
	}
	select {
	case uc.queue <- envelope:
	default:
		uc.dropped.Add(1)
		uc.logger.Warn("Dropping envelope, send queue is full", zap.Int("queue_size", cap(uc.queue)))
	}
}

func (uc *UDPChannelImpl) writeLoop() {
	defer close(uc.done)
	for envelope := range uc.queue {
		if _, err := uc.conn.Write(envelope); err != nil {
			uc.failed.Add(1)
			uc.logger.Error("Failed to send envelope", zap.Int("bytes", len(envelope)), zap.Error(err))
			continue
		}
		uc.written.Add(1)
	}
}

// Close drains already queued envelopes, then releases the socket. Repeated calls are no-ops.
func (uc *UDPChannelImpl) Close() error {
	uc.mu.Lock()
	if uc.closed {
		uc.mu.Unlock()
		return nil
	}
	uc.closed = true
	close(uc.queue)
	uc.mu.Unlock()

	<-uc.done
	if err := uc.conn.Close(); err != nil {
		return fmt.Errorf("failed to close UDP socket: %w", err)
	}
	return nil
}

func (uc *UDPChannelImpl) Stats() Stats {
	return Stats{
		Written: uc.written.Load(),
		Dropped: uc.dropped.Load(),
		Failed:  uc.failed.Load(),
	}
}
