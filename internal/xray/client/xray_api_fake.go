package client

import (
	"context"
	"errors"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/xray"
	"github.com/aws/aws-sdk-go-v2/service/xray/types"
	"strconv"
	"sync"
)

var ErrFakeBackend = errors.New("fake backend failure")

// FakeXrayAPI is a test double shared by the client, fetcher, poll loop and lifecycle
// tests. It serves canned pages keyed by their NextToken and records every request.
type FakeXrayAPI struct {
	// SummaryPages holds the trace summaries of each GetTraceSummaries page, in order.
	SummaryPages [][]types.TraceSummary
	// SummaryErrorPage is the 1-based page that fails, 0 for none.
	SummaryErrorPage int
	// Traces are looked up by id; ids without an entry come back as unprocessed.
	Traces map[string]types.Trace
	// TracesPerPage splits BatchGetTraces results over several pages, 0 for a single page.
	TracesPerPage int
	// BatchErrorCall is the 1-based BatchGetTraces call that fails, 0 for none.
	BatchErrorCall int

	mu                sync.Mutex
	summaryInputs     []xray.GetTraceSummariesInput
	batchCalls        [][]string
	batchRequestCount int
}

func NewFakeXrayAPI() *FakeXrayAPI {
	return &FakeXrayAPI{
		Traces: make(map[string]types.Trace),
	}
}

func (f *FakeXrayAPI) GetTraceSummaries(
	ctx context.Context,
	params *xray.GetTraceSummariesInput,
	optFns ...func(*xray.Options),
) (*xray.GetTraceSummariesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaryInputs = append(f.summaryInputs, *params)

	pageIndex := pageFromToken(params.NextToken)
	if f.SummaryErrorPage == pageIndex+1 {
		return nil, ErrFakeBackend
	}
	output := &xray.GetTraceSummariesOutput{}
	if pageIndex < len(f.SummaryPages) {
		output.TraceSummaries = f.SummaryPages[pageIndex]
	}
	if pageIndex+1 < len(f.SummaryPages) {
		output.NextToken = aws.String(strconv.Itoa(pageIndex + 1))
	}
	return output, nil
}

func (f *FakeXrayAPI) BatchGetTraces(
	ctx context.Context,
	params *xray.BatchGetTracesInput,
	optFns ...func(*xray.Options),
) (*xray.BatchGetTracesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchRequestCount++
	if params.NextToken == nil {
		f.batchCalls = append(f.batchCalls, append([]string(nil), params.TraceIds...))
	}
	if f.BatchErrorCall == f.batchRequestCount {
		return nil, ErrFakeBackend
	}

	var found []types.Trace
	var unprocessed []string
	for _, id := range params.TraceIds {
		trace, ok := f.Traces[id]
		if !ok {
			unprocessed = append(unprocessed, id)
			continue
		}
		found = append(found, trace)
	}

	pageSize := f.TracesPerPage
	if pageSize <= 0 {
		pageSize = len(found)
	}
	pageIndex := pageFromToken(params.NextToken)
	start := pageIndex * pageSize
	end := min(start+pageSize, len(found))
	output := &xray.BatchGetTracesOutput{}
	if start < end {
		output.Traces = found[start:end]
	}
	if end < len(found) {
		output.NextToken = aws.String(strconv.Itoa(pageIndex + 1))
	}
	if pageIndex == 0 {
		output.UnprocessedTraceIds = unprocessed
	}
	return output, nil
}

// BatchCalls returns the id list of every logical BatchGetTraces call, in order.
func (f *FakeXrayAPI) BatchCalls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.batchCalls...)
}

func (f *FakeXrayAPI) SummaryInputs() []xray.GetTraceSummariesInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]xray.GetTraceSummariesInput(nil), f.summaryInputs...)
}

func pageFromToken(token *string) int {
	if token == nil {
		return 0
	}
	page, err := strconv.Atoi(*token)
	if err != nil {
		return 0
	}
	return page
}
