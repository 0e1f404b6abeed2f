package config

import (
	"errors"
	"fmt"
	"github.com/Avi18971911/xray_forwarder/internal/delivery/udp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zapcore"
	"time"
)

const (
	collectorHostFlag    = "collector-host"
	collectorPortFlag    = "collector-port"
	pollingIntervalFlag  = "polling-interval-seconds"
	filterExpressionFlag = "filter-expression"
	regionFlag           = "region"
	xrayEndpointFlag     = "xray-endpoint"
	sendQueueSizeFlag    = "send-queue-size"
	healthPortFlag       = "health-port"
	shutdownGraceFlag    = "shutdown-grace-seconds"
	logLevelFlag         = "log-level"
	onceFlag             = "once"
)

const defaultPollingIntervalSeconds = 10
const defaultShutdownGraceSeconds = 10

var (
	ErrMissingCollectorHost = errors.New("OTEL_COLLECTOR_URL must be set")
	ErrInvalidInterval      = errors.New("POLLING_INTERVAL_SECONDS must be greater than zero")
	ErrInvalidPort          = errors.New("port must be between 1 and 65535")
)

type Config struct {
	CollectorHost    string
	CollectorPort    int
	PollingInterval  time.Duration
	FilterExpression *string
	Region           string
	XrayEndpoint     string
	SendQueueSize    int
	HealthPort       int
	ShutdownGrace    time.Duration
	LogLevel         zapcore.Level
	Once             bool
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     collectorHostFlag,
			Usage:    "host of the collector receiving segment datagrams",
			EnvVars:  []string{"OTEL_COLLECTOR_URL"},
			Required: true,
		},
		&cli.IntFlag{
			Name:    collectorPortFlag,
			Usage:   "UDP port of the collector",
			EnvVars: []string{"OTEL_COLLECTOR_PORT"},
			Value:   udp.DefaultPort,
		},
		&cli.IntFlag{
			Name:    pollingIntervalFlag,
			Usage:   "seconds between the end of one poll cycle and the start of the next",
			EnvVars: []string{"POLLING_INTERVAL_SECONDS"},
			Value:   defaultPollingIntervalSeconds,
		},
		&cli.StringFlag{
			Name:    filterExpressionFlag,
			Usage:   "X-Ray filter expression applied to trace summaries",
			EnvVars: []string{"FILTER_EXPRESSION"},
		},
		&cli.StringFlag{
			Name:    regionFlag,
			Usage:   "AWS region, defaults to the SDK resolution chain",
			EnvVars: []string{"AWS_REGION"},
		},
		&cli.StringFlag{
			Name:    xrayEndpointFlag,
			Usage:   "override for the X-Ray API endpoint",
			EnvVars: []string{"XRAY_ENDPOINT"},
		},
		&cli.IntFlag{
			Name:    sendQueueSizeFlag,
			Usage:   "envelopes buffered for the UDP writer before new ones are dropped",
			EnvVars: []string{"SEND_QUEUE_SIZE"},
			Value:   udp.DefaultQueueSize,
		},
		&cli.IntFlag{
			Name:    healthPortFlag,
			Usage:   "port of the gRPC health server, 0 disables it",
			EnvVars: []string{"HEALTH_PORT"},
		},
		&cli.IntFlag{
			Name:    shutdownGraceFlag,
			Usage:   "seconds an in-flight poll cycle may run after a termination signal",
			EnvVars: []string{"SHUTDOWN_GRACE_SECONDS"},
			Value:   defaultShutdownGraceSeconds,
		},
		&cli.StringFlag{
			Name:    logLevelFlag,
			Usage:   "debug, info, warn or error",
			EnvVars: []string{"LOG_LEVEL"},
			Value:   "info",
		},
		&cli.BoolFlag{
			Name:  onceFlag,
			Usage: "run a single poll cycle and exit",
		},
	}
}

func FromContext(c *cli.Context) (Config, error) {
	host := c.String(collectorHostFlag)
	if host == "" {
		return Config{}, ErrMissingCollectorHost
	}
	port := c.Int(collectorPortFlag)
	if port <= 0 || port > 65535 {
		return Config{}, fmt.Errorf("%w: collector port %d", ErrInvalidPort, port)
	}
	intervalSeconds := c.Int(pollingIntervalFlag)
	if intervalSeconds <= 0 {
		return Config{}, fmt.Errorf("%w: got %d", ErrInvalidInterval, intervalSeconds)
	}
	healthPort := c.Int(healthPortFlag)
	if healthPort < 0 || healthPort > 65535 {
		return Config{}, fmt.Errorf("%w: health port %d", ErrInvalidPort, healthPort)
	}
	logLevel, err := zapcore.ParseLevel(c.String(logLevelFlag))
	if err != nil {
		return Config{}, fmt.Errorf("invalid log level: %w", err)
	}

	var filterExpression *string
	if c.IsSet(filterExpressionFlag) && c.String(filterExpressionFlag) != "" {
		filter := c.String(filterExpressionFlag)
		filterExpression = &filter
	}

	return Config{
		CollectorHost:    host,
		CollectorPort:    port,
		PollingInterval:  time.Duration(intervalSeconds) * time.Second,
		FilterExpression: filterExpression,
		Region:           c.String(regionFlag),
		XrayEndpoint:     c.String(xrayEndpointFlag),
		SendQueueSize:    c.Int(sendQueueSizeFlag),
		HealthPort:       healthPort,
		ShutdownGrace:    time.Duration(c.Int(shutdownGraceFlag)) * time.Second,
		LogLevel:         logLevel,
		Once:             c.Bool(onceFlag),
	}, nil
}
