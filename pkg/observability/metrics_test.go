package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/fastblame/pkg/observability"
)

func setupTestMeter(t *testing.T) (*observability.REDMetrics, *observability.BlameMetrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := mp.Meter("test")

	red, err := observability.NewREDMetrics(meter)
	require.NoError(t, err)

	bm, err := observability.NewBlameMetrics(meter)
	require.NoError(t, err)

	return red, bm, reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics

	require.NoError(t, reader.Collect(context.Background(), &rm))

	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for idx := range rm.ScopeMetrics {
		for midx := range rm.ScopeMetrics[idx].Metrics {
			if rm.ScopeMetrics[idx].Metrics[midx].Name == name {
				return &rm.ScopeMetrics[idx].Metrics[midx]
			}
		}
	}

	return nil
}

func sumValue(t *testing.T, m *metricdata.Metrics) int64 {
	t.Helper()

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", m.Name)

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}

	return total
}

func TestREDMetrics_RecordRequest(t *testing.T) {
	t.Parallel()

	red, _, reader := setupTestMeter(t)

	red.RecordRequest(context.Background(), "blame.subprocess", observability.StatusOK, 100*time.Millisecond)

	rm := collectMetrics(t, reader)

	reqTotal := findMetric(rm, "fastblame.requests.total")
	require.NotNil(t, reqTotal)
	assert.Equal(t, int64(1), sumValue(t, reqTotal))

	require.NotNil(t, findMetric(rm, "fastblame.request.duration.seconds"))
	assert.Nil(t, findMetric(rm, "fastblame.errors.total"))
}

func TestREDMetrics_RecordRequestError(t *testing.T) {
	t.Parallel()

	red, _, reader := setupTestMeter(t)

	red.RecordRequest(context.Background(), "blame.libgit2", observability.StatusError, time.Second)

	rm := collectMetrics(t, reader)

	errTotal := findMetric(rm, "fastblame.errors.total")
	require.NotNil(t, errTotal)
	assert.Equal(t, int64(1), sumValue(t, errTotal))
}

func TestREDMetrics_TrackInflight(t *testing.T) {
	t.Parallel()

	red, _, reader := setupTestMeter(t)

	done := red.TrackInflight(context.Background(), "http")

	inflight := findMetric(collectMetrics(t, reader), "fastblame.inflight.requests")
	require.NotNil(t, inflight)
	assert.Equal(t, int64(1), sumValue(t, inflight))

	done()

	inflight = findMetric(collectMetrics(t, reader), "fastblame.inflight.requests")
	require.NotNil(t, inflight)
	assert.Equal(t, int64(0), sumValue(t, inflight))
}

func TestREDMetrics_NilSafe(t *testing.T) {
	t.Parallel()

	var red *observability.REDMetrics

	red.RecordRequest(context.Background(), "x", observability.StatusOK, time.Millisecond)
	red.TrackInflight(context.Background(), "x")()

	var bm *observability.BlameMetrics

	bm.RecordHunk(context.Background(), "subprocess", 3)
}

func TestBlameMetrics_RecordHunk(t *testing.T) {
	t.Parallel()

	_, bm, reader := setupTestMeter(t)
	ctx := context.Background()

	bm.RecordHunk(ctx, "subprocess", 3)
	bm.RecordHunk(ctx, "subprocess", 1)
	bm.RecordHunk(ctx, "libgit2", 5)

	rm := collectMetrics(t, reader)

	hunks := findMetric(rm, "fastblame.blame.hunks.total")
	require.NotNil(t, hunks)
	assert.Equal(t, int64(3), sumValue(t, hunks))

	lines := findMetric(rm, "fastblame.blame.lines.total")
	require.NotNil(t, lines)
	assert.Equal(t, int64(9), sumValue(t, lines))
}

func TestNewREDMetrics_WithNoopMeter(t *testing.T) {
	t.Parallel()

	providers, err := observability.Init(observability.DefaultConfig())
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, providers.Shutdown(context.Background())) })

	red, err := observability.NewREDMetrics(providers.Meter)
	require.NoError(t, err)
	assert.NotNil(t, red)

	red.RecordRequest(context.Background(), "test", observability.StatusOK, time.Millisecond)
}
