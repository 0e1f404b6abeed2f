package client

import (
	"context"
	"errors"
	"fmt"
	"github.com/Avi18971911/xray_forwarder/internal/xray/model"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/xray"
	"go.uber.org/zap"
	"net/http"
	"sync"
)

// MaxBatchSize is the largest number of trace ids BatchGetTraces accepts per call.
const MaxBatchSize = 5

var (
	ErrClientClosed  = errors.New("xray client has been closed")
	ErrMissingRegion = errors.New("no AWS region configured")
	ErrBatchTooLarge = fmt.Errorf("batch exceeds %d trace ids", MaxBatchSize)
)

// XrayAPI is the subset of the X-Ray SDK client the forwarder pages through.
type XrayAPI interface {
	xray.GetTraceSummariesAPIClient
	xray.BatchGetTracesAPIClient
}

type XrayClient interface {
	// TraceSummaryPages pages through the trace summaries recorded in window, optionally
	// narrowed by a backend filter expression. The channel closes after the last page or
	// after the first error.
	TraceSummaryPages(ctx context.Context, window model.TimeWindow, filterExpression *string) <-chan SummaryPageResult
	// BatchTracePages pages through the full traces for at most MaxBatchSize ids.
	BatchTracePages(ctx context.Context, traceIds []string) <-chan TracePageResult
	Close() error
}

type Options struct {
	Region   string
	Endpoint string
}

type XrayClientImpl struct {
	api       XrayAPI
	transport *http.Transport
	mu        sync.RWMutex
	closed    bool
	logger    *zap.Logger
}

// NewXrayClientImpl resolves region and credentials through the SDK default chain.
func NewXrayClientImpl(ctx context.Context, opts Options, logger *zap.Logger) (*XrayClientImpl, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	loadOpts := []func(*config.LoadOptions) error{
		config.WithHTTPClient(&http.Client{Transport: transport}),
	}
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	if cfg.Region == "" {
		return nil, ErrMissingRegion
	}

	api := xray.NewFromConfig(cfg, func(o *xray.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})
	fields := []zap.Field{zap.String("region", cfg.Region)}
	if opts.Endpoint != "" {
		fields = append(fields, zap.String("endpoint", opts.Endpoint))
	}
	logger.Info("Created X-Ray client", fields...)
	return &XrayClientImpl{
		api:       api,
		transport: transport,
		logger:    logger,
	}, nil
}

func NewXrayClientImplFromAPI(api XrayAPI, logger *zap.Logger) *XrayClientImpl {
	return &XrayClientImpl{
		api:    api,
		logger: logger,
	}
}

// Close releases pooled connections. Pages requested afterwards fail with ErrClientClosed.
func (xc *XrayClientImpl) Close() error {
	xc.mu.Lock()
	defer xc.mu.Unlock()
	if xc.closed {
		return nil
	}
	xc.closed = true
	if xc.transport != nil {
		xc.transport.CloseIdleConnections()
	}
	return nil
}

func (xc *XrayClientImpl) isClosed() bool {
	xc.mu.RLock()
	defer xc.mu.RUnlock()
	return xc.closed
}
