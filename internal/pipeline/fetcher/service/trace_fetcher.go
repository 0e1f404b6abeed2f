package service

import (
	"context"
	"fmt"
	"github.com/Avi18971911/xray_forwarder/internal/pipeline/fetcher/model"
	"github.com/Avi18971911/xray_forwarder/internal/xray/client"
	xrayModel "github.com/Avi18971911/xray_forwarder/internal/xray/model"
	"go.uber.org/zap"
)

type TraceFetcher interface {
	// TraceIds drains every summary page for the window. Ids from pages read before a
	// failing page are discarded along with the error.
	TraceIds(ctx context.Context, window xrayModel.TimeWindow, filterExpression *string) ([]string, error)
	// Traces batch-fetches the given ids in chunks of client.MaxBatchSize, in order.
	// The stream ends after the last trace or after the first error.
	Traces(ctx context.Context, traceIds []string) <-chan model.TraceResult
}

type TraceFetcherImpl struct {
	xc     client.XrayClient
	logger *zap.Logger
}

func NewTraceFetcherImpl(xc client.XrayClient, logger *zap.Logger) *TraceFetcherImpl {
	return &TraceFetcherImpl{
		xc:     xc,
		logger: logger,
	}
}

func (tf *TraceFetcherImpl) TraceIds(
	ctx context.Context,
	window xrayModel.TimeWindow,
	filterExpression *string,
) ([]string, error) {
	summaryCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	traceIds := make([]string, 0)
	skipped := 0
	for result := range tf.xc.TraceSummaryPages(summaryCtx, window, filterExpression) {
		if result.Error != nil {
			return nil, fmt.Errorf("failed to list trace summaries: %w", result.Error)
		}
		if result.Success == nil {
			return nil, fmt.Errorf("trace summary page is nil")
		}
		traceIds = append(traceIds, result.Success.TraceIds...)
		skipped += result.Success.Skipped
	}
	if skipped > 0 {
		tf.logger.Debug("Skipped trace summaries without an id", zap.Int("skipped", skipped))
	}
	return traceIds, nil
}

func (tf *TraceFetcherImpl) Traces(
	ctx context.Context,
	traceIds []string,
) <-chan model.TraceResult {
	outputChannel := make(chan model.TraceResult)
	go func() {
		defer close(outputChannel)
		for _, chunk := range ChunkTraceIds(traceIds, client.MaxBatchSize) {
			if err := tf.fetchChunk(ctx, chunk, outputChannel); err != nil {
				select {
				case outputChannel <- model.TraceResult{Error: err}:
				case <-ctx.Done():
				}
				return
			}
		}
	}()
	return outputChannel
}

func (tf *TraceFetcherImpl) fetchChunk(
	ctx context.Context,
	chunk []string,
	outputChannel chan<- model.TraceResult,
) error {
	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for result := range tf.xc.BatchTracePages(batchCtx, chunk) {
		if result.Error != nil {
			return fmt.Errorf("failed to batch get traces %v: %w", chunk, result.Error)
		}
		if result.Success == nil {
			return fmt.Errorf("batch traces page is nil")
		}
		for i := range result.Success.Traces {
			select {
			case outputChannel <- model.TraceResult{Trace: &result.Success.Traces[i]}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// ChunkTraceIds splits ids into consecutive chunks of at most size ids, preserving order.
func ChunkTraceIds(traceIds []string, size int) [][]string {
	if size <= 0 {
		size = client.MaxBatchSize
	}
	chunks := make([][]string, 0, (len(traceIds)+size-1)/size)
	for start := 0; start < len(traceIds); start += size {
		end := min(start+size, len(traceIds))
		chunks = append(chunks, traceIds[start:end])
	}
	return chunks
}
