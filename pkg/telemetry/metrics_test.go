package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestHolder(t *testing.T) (*MetricsHolder, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	holder := &MetricsHolder{
		terminalMedianMap:  make(map[string]float64),
		lossProbabilityMap: make(map[string]float64),
	}
	require.NoError(t, holder.InitMetrics(mp.Meter("test")))
	return holder, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestMetricsHolder_RecordRun(t *testing.T) {
	holder, reader := newTestHolder(t)
	ctx := context.Background()

	holder.RecordRun(ctx, "TSLA", 1000, 3, 12.5)
	holder.RecordRun(ctx, "TSLA", 500, 0, 4.0)

	data := collect(t, reader)

	runs, ok := data[MetricRunsTotal].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, runs.DataPoints, 1)
	assert.Equal(t, int64(2), runs.DataPoints[0].Value)

	paths, ok := data[MetricPathsTotal].(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(1500), paths.DataPoints[0].Value)

	nonPositive, ok := data[MetricNonPositivePathsTotal].(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(3), nonPositive.DataPoints[0].Value)

	duration, ok := data[MetricRunDuration].(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.Equal(t, uint64(2), duration.DataPoints[0].Count)
}

func TestMetricsHolder_ObservableGauges(t *testing.T) {
	holder, reader := newTestHolder(t)

	holder.SetTerminalMedian("TSLA", 251.5)
	holder.SetLossProbability("TSLA", 0.12)

	assert.Equal(t, map[string]float64{"TSLA": 251.5}, holder.GetTerminalMedian())
	assert.Equal(t, map[string]float64{"TSLA": 0.12}, holder.GetLossProbability())

	data := collect(t, reader)
	median, ok := data[MetricTerminalMedian].(metricdata.Gauge[float64])
	require.True(t, ok)
	require.Len(t, median.DataPoints, 1)
	assert.InDelta(t, 251.5, median.DataPoints[0].Value, 1e-9)
}

func TestGetGlobalMetrics_SafeBeforeSetup(t *testing.T) {
	m := GetGlobalMetrics()
	require.NotNil(t, m)
	assert.NotPanics(t, func() {
		m.RecordRun(context.Background(), "AAPL", 10, 0, 1)
	})
}
