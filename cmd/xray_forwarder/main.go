package main

import (
	"fmt"
	"github.com/Avi18971911/xray_forwarder/internal/config"
	"github.com/Avi18971911/xray_forwarder/internal/delivery/udp"
	"github.com/Avi18971911/xray_forwarder/internal/health"
	"github.com/Avi18971911/xray_forwarder/internal/lifecycle"
	codecService "github.com/Avi18971911/xray_forwarder/internal/pipeline/codec/service"
	fetcherService "github.com/Avi18971911/xray_forwarder/internal/pipeline/fetcher/service"
	pollLoopService "github.com/Avi18971911/xray_forwarder/internal/pipeline/poll_loop/service"
	"github.com/Avi18971911/xray_forwarder/internal/xray/client"
	"github.com/Jeffail/shutdown"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	app := &cli.App{
		Name:   "xray_forwarder",
		Usage:  "poll AWS X-Ray for recent traces and forward their segments to an OpenTelemetry collector over UDP",
		Flags:  config.Flags(),
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.FromContext(c)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	xc, err := client.NewXrayClientImpl(
		ctx,
		client.Options{Region: cfg.Region, Endpoint: cfg.XrayEndpoint},
		logger,
	)
	if err != nil {
		logger.Error("Failed to create X-Ray client", zap.Error(err))
		return err
	}

	channel, err := udp.NewUDPChannelImpl(cfg.CollectorHost, cfg.CollectorPort, cfg.SendQueueSize, logger)
	if err != nil {
		logger.Error("Failed to open delivery channel", zap.Error(err))
		_ = lifecycle.CloseAll(logger, xc)
		return err
	}

	var healthServer lifecycle.HealthReporter
	if cfg.HealthPort > 0 {
		hs, err := health.NewHealthServer(cfg.HealthPort, logger)
		if err != nil {
			logger.Error("Failed to create health server", zap.Error(err))
			_ = lifecycle.CloseAll(logger, channel, xc)
			return err
		}
		hs.Start()
		healthServer = hs
	}

	shutSig := shutdown.NewSignaller()
	pollLoop, err := pollLoopService.NewPollLoop(
		fetcherService.NewTraceFetcherImpl(xc, logger),
		codecService.NewEnvelopeCodecImpl(),
		channel,
		cfg.PollingInterval,
		cfg.FilterExpression,
		shutSig,
		logger,
	)
	if err != nil {
		logger.Error("Failed to create poll loop", zap.Error(err))
		_ = lifecycle.CloseAll(logger, channel, xc, healthServer)
		return err
	}

	runLoop := pollLoop.Run
	if cfg.Once {
		runLoop = pollLoop.RunOnce
	}
	manager := lifecycle.NewManager(runLoop, channel, xc, healthServer, shutSig, cfg.ShutdownGrace, logger)
	if err := manager.Run(ctx); err != nil {
		// already logged by the manager; shutdown was still graceful
		logger.Warn("Shut down with errors")
	}
	logger.Info("Shut down complete")
	return nil
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	return zapConfig.Build()
}
