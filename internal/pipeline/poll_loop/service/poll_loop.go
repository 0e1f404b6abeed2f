package service

import (
	"context"
	"fmt"
	"github.com/Avi18971911/xray_forwarder/internal/delivery/udp"
	codecService "github.com/Avi18971911/xray_forwarder/internal/pipeline/codec/service"
	fetcherService "github.com/Avi18971911/xray_forwarder/internal/pipeline/fetcher/service"
	"github.com/Avi18971911/xray_forwarder/internal/pipeline/poll_loop/model"
	"github.com/Avi18971911/xray_forwarder/internal/xray/client"
	xrayModel "github.com/Avi18971911/xray_forwarder/internal/xray/model"
	"github.com/Jeffail/shutdown"
	"go.uber.org/zap"
	"time"
)

const DefaultInterval = 10 * time.Second

type PollLoop struct {
	fetcher          fetcherService.TraceFetcher
	codec            codecService.EnvelopeCodec
	channel          udp.DeliveryChannel
	interval         time.Duration
	filterExpression *string
	shutSig          *shutdown.Signaller
	now              func() time.Time
	logger           *zap.Logger
}

func NewPollLoop(
	fetcher fetcherService.TraceFetcher,
	codec codecService.EnvelopeCodec,
	channel udp.DeliveryChannel,
	interval time.Duration,
	filterExpression *string,
	shutSig *shutdown.Signaller,
	logger *zap.Logger,
) (*PollLoop, error) {
	if interval <= 0 {
		return nil, xrayModel.ErrNonPositiveInterval
	}
	return &PollLoop{
		fetcher:          fetcher,
		codec:            codec,
		channel:          channel,
		interval:         interval,
		filterExpression: filterExpression,
		shutSig:          shutSig,
		now:              time.Now,
		logger:           logger,
	}, nil
}

// Run polls until a soft stop is signalled or ctx is cancelled. The delay between cycles
// starts once a cycle finishes, so the period is the cycle's work plus the interval.
// A stop signal never interrupts a cycle that has already started.
func (pl *PollLoop) Run(ctx context.Context) {
	defer pl.shutSig.TriggerHasStopped()
	pl.logger.Info(
		"Starting poll loop",
		zap.Duration("interval", pl.interval),
		zap.Stringp("filter_expression", pl.filterExpression),
	)
	for {
		if pl.shutSig.IsSoftStopSignalled() || ctx.Err() != nil {
			return
		}
		pl.logReport(pl.RunCycle(ctx))

		timer := time.NewTimer(pl.interval)
		select {
		case <-timer.C:
		case <-pl.shutSig.SoftStopChan():
			timer.Stop()
			pl.logger.Info("Poll loop stopped")
			return
		case <-ctx.Done():
			timer.Stop()
			pl.logger.Info("Poll loop cancelled")
			return
		}
	}
}

// RunOnce runs a single cycle and then reports the loop as stopped.
func (pl *PollLoop) RunOnce(ctx context.Context) {
	defer pl.shutSig.TriggerHasStopped()
	pl.logReport(pl.RunCycle(ctx))
}

// RunCycle fetches the traces recorded during the last interval and forwards their segments.
func (pl *PollLoop) RunCycle(ctx context.Context) model.CycleReport {
	window, err := xrayModel.NewTimeWindow(pl.now(), pl.interval)
	report := model.CycleReport{Window: window}
	if err != nil {
		report.Err = err
		return report
	}

	traceIds, err := pl.fetcher.TraceIds(ctx, window, pl.filterExpression)
	if err != nil {
		report.Err = err
		return report
	}
	report.Found = len(traceIds)
	if report.Found == 0 {
		return report
	}

	for result := range pl.fetcher.Traces(ctx, traceIds) {
		if result.Error != nil {
			report.Err = result.Error
			continue
		}
		report.Traces++
		for _, segment := range result.Trace.Segments {
			report.Segments++
			pl.forward(result.Trace.ID, segment, &report)
		}
	}
	return report
}

func (pl *PollLoop) forward(traceId string, segment xrayModel.Segment, report *model.CycleReport) {
	envelope, ok, err := pl.codec.Encode(segment)
	if err != nil {
		report.Failed++
		pl.logger.Error(
			"Failed to encode segment, skipping",
			zap.String("trace_id", traceId),
			zap.String("segment_id", segment.ID),
			zap.Error(err),
		)
		return
	}
	if !ok {
		report.Skipped++
		return
	}
	// send outcome is not awaited
	pl.channel.Send(envelope)
	report.Sent++
}

func (pl *PollLoop) logReport(report model.CycleReport) {
	fields := []zap.Field{
		zap.Time("window_start", report.Window.Start),
		zap.Time("window_end", report.Window.End),
		zap.Int("found", report.Found),
	}
	if report.Err != nil {
		pl.logger.Error(
			"Failed to complete poll cycle",
			append(
				fields,
				zap.Int("sent", report.Sent),
				zap.String("error_code", client.ErrorCode(report.Err)),
				zap.Error(report.Err),
			)...,
		)
		return
	}
	if report.Found == 0 {
		pl.logger.Info("No trace ids found", fields...)
		return
	}
	pl.logger.Info(
		fmt.Sprintf("Sent %d of %d segments", report.Sent, report.Segments),
		append(
			fields,
			zap.Int("traces", report.Traces),
			zap.Int("segments", report.Segments),
			zap.Int("sent", report.Sent),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed),
		)...,
	)
}
