package service

import (
	"context"
	"fmt"
	"github.com/Avi18971911/xray_forwarder/internal/pipeline/fetcher/model"
	"github.com/Avi18971911/xray_forwarder/internal/xray/client"
	xrayModel "github.com/Avi18971911/xray_forwarder/internal/xray/model"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/xray/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"testing"
	"time"
)

var window = xrayModel.TimeWindow{
	Start: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	End:   time.Date(2024, 5, 1, 12, 0, 10, 0, time.UTC),
}

func TestChunkTraceIds(t *testing.T) {
	t.Run("Covers every id exactly once in order with ceil(N/5) chunks", func(t *testing.T) {
		for n := 0; n <= 17; n++ {
			ids := makeIds(n)
			chunks := ChunkTraceIds(ids, client.MaxBatchSize)
			assert.Len(t, chunks, (n+4)/5)
			var flattened []string
			for _, chunk := range chunks {
				assert.LessOrEqual(t, len(chunk), client.MaxBatchSize)
				assert.NotEmpty(t, chunk)
				flattened = append(flattened, chunk...)
			}
			if n == 0 {
				assert.Empty(t, flattened)
			} else {
				assert.Equal(t, ids, flattened)
			}
		}
	})
}

func TestTraceFetcherImpl_TraceIds(t *testing.T) {
	t.Run("Collects ids across pages in page order", func(t *testing.T) {
		api := client.NewFakeXrayAPI()
		api.SummaryPages = [][]types.TraceSummary{
			summaries("1-d", "1-a", "1-c", "1-b"),
			summaries("1-e", "1-g", "1-f"),
		}
		tf := newFetcher(api)

		ids, err := tf.TraceIds(context.Background(), window, nil)
		require.Nil(t, err)
		assert.Equal(t, []string{"1-d", "1-a", "1-c", "1-b", "1-e", "1-g", "1-f"}, ids)
	})

	t.Run("Discards ids already read when a later page fails", func(t *testing.T) {
		api := client.NewFakeXrayAPI()
		api.SummaryPages = [][]types.TraceSummary{summaries("1-a", "1-b"), summaries("1-c")}
		api.SummaryErrorPage = 2
		tf := newFetcher(api)

		ids, err := tf.TraceIds(context.Background(), window, nil)
		assert.ErrorIs(t, err, client.ErrFakeBackend)
		assert.Nil(t, ids)
	})

	t.Run("Returns no ids for an empty window", func(t *testing.T) {
		api := client.NewFakeXrayAPI()
		tf := newFetcher(api)

		ids, err := tf.TraceIds(context.Background(), window, aws.String("ok = false"))
		require.Nil(t, err)
		assert.Empty(t, ids)
		assert.Equal(t, "ok = false", *api.SummaryInputs()[0].FilterExpression)
	})
}

func TestTraceFetcherImpl_Traces(t *testing.T) {
	t.Run("Issues one batch call per chunk of five", func(t *testing.T) {
		api := client.NewFakeXrayAPI()
		ids := makeIds(7)
		for _, id := range ids {
			api.Traces[id] = types.Trace{Id: aws.String(id)}
		}
		tf := newFetcher(api)

		traces := drain(t, tf.Traces(context.Background(), ids))
		require.Len(t, traces, 7)
		for i, trace := range traces {
			assert.Equal(t, ids[i], trace.ID)
		}
		assert.Equal(t, [][]string{ids[:5], ids[5:]}, api.BatchCalls())
	})

	t.Run("Makes no batch call for zero ids", func(t *testing.T) {
		api := client.NewFakeXrayAPI()
		tf := newFetcher(api)

		traces := drain(t, tf.Traces(context.Background(), nil))
		assert.Empty(t, traces)
		assert.Empty(t, api.BatchCalls())
	})

	t.Run("Ends the stream with an error when a batch fails", func(t *testing.T) {
		api := client.NewFakeXrayAPI()
		ids := makeIds(11)
		for _, id := range ids {
			api.Traces[id] = types.Trace{Id: aws.String(id)}
		}
		api.BatchErrorCall = 2
		tf := newFetcher(api)

		var results []model.TraceResult
		for result := range tf.Traces(context.Background(), ids) {
			results = append(results, result)
		}
		require.Len(t, results, 6)
		for _, result := range results[:5] {
			assert.Nil(t, result.Error)
		}
		assert.ErrorIs(t, results[5].Error, client.ErrFakeBackend)
		assert.Len(t, api.BatchCalls(), 2)
	})
}

func newFetcher(api *client.FakeXrayAPI) *TraceFetcherImpl {
	return NewTraceFetcherImpl(client.NewXrayClientImplFromAPI(api, zap.NewNop()), zap.NewNop())
}

func drain(t *testing.T, resultChannel <-chan model.TraceResult) []xrayModel.Trace {
	var traces []xrayModel.Trace
	for result := range resultChannel {
		require.Nil(t, result.Error)
		traces = append(traces, *result.Trace)
	}
	return traces
}

func makeIds(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("1-%08d", i)
	}
	return ids
}

func summaries(ids ...string) []types.TraceSummary {
	typed := make([]types.TraceSummary, len(ids))
	for i, id := range ids {
		typed[i] = types.TraceSummary{Id: aws.String(id)}
	}
	return typed
}
