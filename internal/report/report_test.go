package report

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"blackswan/internal/indicators"
	"blackswan/internal/simulation"
	"blackswan/internal/stats"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport(t *testing.T) *RunReport {
	t.Helper()
	terminal, err := stats.Summarize([]float64{90, 100, 110, 120}, stats.DefaultPercentiles)
	require.NoError(t, err)
	returns, err := stats.Summarize([]float64{-0.1, 0, 0.1, 0.2}, stats.DefaultPercentiles)
	require.NoError(t, err)

	return &RunReport{
		ID:           "run-1",
		CreatedAt:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Symbol:       "TSLA",
		Source:       "stocks.csv",
		Observations: 252,
		StartPrice:   100,
		NumPaths:     4,
		NumSteps:     30,
		Stats:        simulation.ReturnStatistics{Mean: 0.001, StdDev: 0.03},
		Terminal:     terminal,
		Returns:      returns,
		Risk: TailRisk{
			VaR95:            0.0925,
			ES95:             0.1,
			LossThreshold:    0.2,
			LossProbability:  0.25,
			NonPositivePaths: 1,
		},
	}
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleReport(t).Render(&buf))
	out := buf.String()

	assert.Contains(t, out, "TSLA")
	assert.Contains(t, out, "stocks.csv (252 observations)")
	assert.Contains(t, out, "100.00")
	assert.Contains(t, out, "4 x 30")
	assert.Contains(t, out, "mean 0.10%")
	assert.Contains(t, out, "median")
	assert.Contains(t, out, "105.00")
	assert.Contains(t, out, "95% interval")
	assert.Contains(t, out, "p2.5=")
	assert.Contains(t, out, "p97.5=")
	assert.Contains(t, out, "VaR 95%")
	assert.Contains(t, out, "9.25%")
	assert.Contains(t, out, "P(loss >= 20.00%)")
	assert.Contains(t, out, "1 of 4")
	assert.NotContains(t, out, "Bollinger")
}

func TestRender_WithIndicators(t *testing.T) {
	r := sampleReport(t)
	r.Indicators = &indicators.Summary{UpperBandMax: 119.75, LowerBandMin: -14.7, MiddleBandMean: 18, MACDMax: 6.21, MACDMin: -6.76, SignalMean: 0.02}

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf))
	out := buf.String()

	assert.Contains(t, out, "Bollinger Bands")
	assert.Contains(t, out, "119.75")
	assert.Contains(t, out, "-14.70")
	assert.Contains(t, out, "MACD")
	assert.Contains(t, out, "-6.76")
}

func TestRunReport_JSONRoundTrip(t *testing.T) {
	r := sampleReport(t)
	data, err := json.Marshal(r)
	require.NoError(t, err)

	var decoded RunReport
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, r.ID, decoded.ID)
	assert.True(t, r.CreatedAt.Equal(decoded.CreatedAt))
	assert.Equal(t, r.Terminal.Percentiles, decoded.Terminal.Percentiles)
	assert.Equal(t, r.Risk, decoded.Risk)
	assert.Nil(t, decoded.Indicators)
}

func TestRenderIndicators(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderIndicators(&buf, &indicators.Summary{UpperBandMax: 1, SignalMean: 0.5}))
	assert.Contains(t, buf.String(), "upper band max")
	assert.Contains(t, buf.String(), "0.50")
}
