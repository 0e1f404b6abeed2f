package lifecycle

import (
	"context"
	"fmt"
	"github.com/Avi18971911/xray_forwarder/internal/delivery/udp"
	"github.com/Avi18971911/xray_forwarder/internal/xray/client"
	"github.com/Jeffail/shutdown"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"io"
	"sync"
	"time"
)

const DefaultGracePeriod = 10 * time.Second

// HealthReporter is told when the forwarder starts and stops serving.
type HealthReporter interface {
	SetServing(serving bool)
	Close() error
}

// Manager owns the handles shared by the poll loop for the lifetime of the process
// and releases them once the loop has stopped.
type Manager struct {
	run         func(ctx context.Context)
	channel     udp.DeliveryChannel
	xc          client.XrayClient
	health      HealthReporter
	shutSig     *shutdown.Signaller
	gracePeriod time.Duration
	releaseOnce sync.Once
	releaseErr  error
	logger      *zap.Logger
}

// NewManager wires the loop entrypoint to the signaller it must report to. health may be nil.
func NewManager(
	run func(ctx context.Context),
	channel udp.DeliveryChannel,
	xc client.XrayClient,
	health HealthReporter,
	shutSig *shutdown.Signaller,
	gracePeriod time.Duration,
	logger *zap.Logger,
) *Manager {
	if gracePeriod <= 0 {
		gracePeriod = DefaultGracePeriod
	}
	return &Manager{
		run:         run,
		channel:     channel,
		xc:          xc,
		health:      health,
		shutSig:     shutSig,
		gracePeriod: gracePeriod,
		logger:      logger,
	}
}

// Run starts the loop and blocks until ctx is cancelled by a termination signal or the
// loop stops on its own. A cycle in flight gets the grace period to finish before its
// context is cancelled. The shared handles are released before Run returns.
func (m *Manager) Run(ctx context.Context) error {
	loopCtx, cancelLoop := context.WithCancel(context.Background())
	defer cancelLoop()
	go func() {
		select {
		case <-m.shutSig.HardStopChan():
			cancelLoop()
		case <-loopCtx.Done():
		}
	}()

	go m.run(loopCtx)
	if m.health != nil {
		m.health.SetServing(true)
	}

	select {
	case <-ctx.Done():
		m.logger.Info("Received termination signal, shutting down")
		m.shutSig.TriggerSoftStop()
	case <-m.shutSig.HasStoppedChan():
	}

	timer := time.NewTimer(m.gracePeriod)
	defer timer.Stop()
	select {
	case <-m.shutSig.HasStoppedChan():
	case <-timer.C:
		m.logger.Warn("Poll cycle still running after grace period, cancelling it", zap.Duration("grace_period", m.gracePeriod))
		m.shutSig.TriggerHardStop()
		<-m.shutSig.HasStoppedChan()
	}

	return m.Release()
}

// Release closes the delivery socket, then the backend client. Only the first call has any effect.
func (m *Manager) Release() error {
	m.releaseOnce.Do(func() {
		var health io.Closer
		if m.health != nil {
			m.health.SetServing(false)
			health = m.health
		}
		m.releaseErr = CloseAll(m.logger, m.channel, m.xc, health)
		if stats, ok := m.channel.(interface{ Stats() udp.Stats }); ok {
			s := stats.Stats()
			m.logger.Info(
				"Delivery channel closed",
				zap.Int64("written", s.Written),
				zap.Int64("dropped", s.Dropped),
				zap.Int64("failed", s.Failed),
			)
		}
	})
	return m.releaseErr
}

// CloseAll closes every non-nil closer in order, logging each failure, and returns
// the failures combined.
func CloseAll(logger *zap.Logger, closers ...io.Closer) error {
	var closeErr error
	for _, closer := range closers {
		if closer == nil {
			continue
		}
		if err := closer.Close(); err != nil {
			logger.Error("Failed to release resource", zap.String("resource", fmt.Sprintf("%T", closer)), zap.Error(err))
			closeErr = multierr.Append(closeErr, err)
		}
	}
	return closeErr
}
