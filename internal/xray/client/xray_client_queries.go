package client

import (
	"context"
	"fmt"
	"github.com/Avi18971911/xray_forwarder/internal/xray/model"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/xray"
	"github.com/aws/aws-sdk-go-v2/service/xray/types"
	"go.uber.org/zap"
)

type SummaryPage struct {
	TraceIds []string
	// summaries the backend returned without an id
	Skipped int
}

type SummaryPageResult struct {
	Success *SummaryPage
	Error   error
}

type TracePage struct {
	Traces              []model.Trace
	UnprocessedTraceIds []string
}

type TracePageResult struct {
	Success *TracePage
	Error   error
}

func (xc *XrayClientImpl) TraceSummaryPages(
	ctx context.Context,
	window model.TimeWindow,
	filterExpression *string,
) <-chan SummaryPageResult {
	resultChannel := make(chan SummaryPageResult)
	go func() {
		defer close(resultChannel)
		input := &xray.GetTraceSummariesInput{
			StartTime:        aws.Time(window.Start),
			EndTime:          aws.Time(window.End),
			FilterExpression: filterExpression,
		}
		paginator := xray.NewGetTraceSummariesPaginator(xc.api, input)
		for paginator.HasMorePages() {
			if xc.isClosed() {
				sendResult(ctx, resultChannel, SummaryPageResult{Error: ErrClientClosed})
				return
			}
			output, err := paginator.NextPage(ctx)
			if err != nil {
				sendResult(ctx, resultChannel, SummaryPageResult{
					Error: fmt.Errorf("failed to get trace summaries page: %w", err),
				})
				return
			}
			if !sendResult(ctx, resultChannel, SummaryPageResult{Success: toSummaryPage(output.TraceSummaries)}) {
				return
			}
		}
	}()
	return resultChannel
}

func (xc *XrayClientImpl) BatchTracePages(
	ctx context.Context,
	traceIds []string,
) <-chan TracePageResult {
	resultChannel := make(chan TracePageResult)
	go func() {
		defer close(resultChannel)
		if len(traceIds) > MaxBatchSize {
			sendResult(ctx, resultChannel, TracePageResult{Error: ErrBatchTooLarge})
			return
		}
		input := &xray.BatchGetTracesInput{
			TraceIds: traceIds,
		}
		paginator := xray.NewBatchGetTracesPaginator(xc.api, input)
		for paginator.HasMorePages() {
			if xc.isClosed() {
				sendResult(ctx, resultChannel, TracePageResult{Error: ErrClientClosed})
				return
			}
			output, err := paginator.NextPage(ctx)
			if err != nil {
				sendResult(ctx, resultChannel, TracePageResult{
					Error: fmt.Errorf("failed to get batch traces page: %w", err),
				})
				return
			}
			if len(output.UnprocessedTraceIds) > 0 {
				xc.logger.Warn(
					"Backend did not process some trace ids",
					zap.Strings("unprocessed_trace_ids", output.UnprocessedTraceIds),
				)
			}
			page := &TracePage{
				Traces:              toTraces(output.Traces),
				UnprocessedTraceIds: output.UnprocessedTraceIds,
			}
			if !sendResult(ctx, resultChannel, TracePageResult{Success: page}) {
				return
			}
		}
	}()
	return resultChannel
}

// sendResult reports false when the consumer gave up before receiving the result.
func sendResult[ResultType any](ctx context.Context, resultChannel chan ResultType, result ResultType) bool {
	select {
	case resultChannel <- result:
		return true
	case <-ctx.Done():
		return false
	}
}

func toSummaryPage(summaries []types.TraceSummary) *SummaryPage {
	page := &SummaryPage{TraceIds: make([]string, 0, len(summaries))}
	for _, summary := range summaries {
		if summary.Id == nil || *summary.Id == "" {
			page.Skipped++
			continue
		}
		page.TraceIds = append(page.TraceIds, *summary.Id)
	}
	return page
}

func toTraces(traces []types.Trace) []model.Trace {
	typedTraces := make([]model.Trace, len(traces))
	for i, trace := range traces {
		segments := make([]model.Segment, len(trace.Segments))
		for j, segment := range trace.Segments {
			segments[j] = model.Segment{
				ID:       aws.ToString(segment.Id),
				Document: segment.Document,
			}
		}
		typedTraces[i] = model.Trace{
			ID:       aws.ToString(trace.Id),
			Segments: segments,
		}
	}
	return typedTraces
}
