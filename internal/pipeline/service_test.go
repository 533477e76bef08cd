package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"blackswan/internal/alert"
	"blackswan/internal/indicators"
	"blackswan/internal/report"
	"blackswan/internal/simulation"
	apperrors "blackswan/pkg/errors"
	"blackswan/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu   sync.Mutex
	runs []*report.RunReport
	err  error
}

func (m *memStore) SaveRun(ctx context.Context, r *report.RunReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.runs = append(m.runs, r)
	return nil
}

type sentAlert struct {
	title string
	level alert.AlertLevel
}

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []sentAlert
}

func (r *recordingAlerter) Alert(ctx context.Context, title, message string, level alert.AlertLevel, fields map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, sentAlert{title: title, level: level})
	return nil
}

func newTestService(opts Options, svcOpts ...ServiceOption) *Service {
	runner := simulation.NewRunner(logging.NewNopLogger())
	svc := NewService(runner, logging.NewNopLogger(), opts, svcOpts...)
	svc.newID = func() string { return "run-test" }
	return svc
}

func TestService_SimulateInlinePrices(t *testing.T) {
	store := &memStore{}
	alerter := &recordingAlerter{}
	svc := newTestService(Options{LossThreshold: 0.2, LossProbabilityLimit: 0.5}, WithStore(store), WithAlerter(alerter))

	rep, err := svc.Simulate(context.Background(), Request{
		Symbol:   "tsla",
		Prices:   []float64{100, 110, 121},
		NumPaths: 5,
		NumSteps: 2,
	})
	require.NoError(t, err)

	assert.Equal(t, "run-test", rep.ID)
	assert.Equal(t, "TSLA", rep.Symbol)
	assert.Equal(t, report.SourceInline, rep.Source)
	assert.Equal(t, 3, rep.Observations)
	assert.Equal(t, 121.0, rep.StartPrice)
	assert.InDelta(t, 0.1, rep.Stats.Mean, 1e-12)
	assert.InDelta(t, 0.0, rep.Stats.StdDev, 1e-12)

	// zero volatility: every path compounds 10% twice
	assert.Equal(t, 5, rep.Terminal.Count)
	assert.InDelta(t, 146.41, rep.Terminal.Median, 1e-9)
	assert.InDelta(t, 0.0, rep.Terminal.StdDev, 1e-9)
	assert.InDelta(t, 0.21, rep.Returns.Mean, 1e-9)
	assert.Contains(t, rep.Terminal.Percentiles, 2.5)
	assert.Contains(t, rep.Terminal.Percentiles, 97.5)

	assert.Equal(t, 0.0, rep.Risk.LossProbability)
	assert.Equal(t, 0, rep.Risk.NonPositivePaths)
	assert.Nil(t, rep.Indicators)

	require.Len(t, store.runs, 1)
	assert.Same(t, rep, store.runs[0])
	assert.Empty(t, alerter.alerts)
}

func TestService_AlertsOnTailRisk(t *testing.T) {
	alerter := &recordingAlerter{}
	svc := newTestService(Options{LossThreshold: 0.2, LossProbabilityLimit: 0.5}, WithAlerter(alerter))

	// a single -110% return drives every path below zero in one step
	rep, err := svc.Simulate(context.Background(), Request{
		Prices:     []float64{100, -10},
		StartPrice: 50,
		NumPaths:   3,
		NumSteps:   1,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, rep.Risk.NonPositivePaths)
	assert.Equal(t, 1.0, rep.Risk.LossProbability)
	assert.InDelta(t, -5.0, rep.Terminal.Median, 1e-9)

	require.Len(t, alerter.alerts, 2)
	assert.Equal(t, alert.Critical, alerter.alerts[0].level)
	assert.Equal(t, alert.Warning, alerter.alerts[1].level)
}

func TestService_SeededRunsRepeat(t *testing.T) {
	svc := newTestService(Options{})
	req := Request{
		Prices:   []float64{100, 102, 99, 104, 101, 103},
		NumPaths: 50,
		NumSteps: 20,
		Seed:     7,
	}

	a, err := svc.Simulate(context.Background(), req)
	require.NoError(t, err)
	b, err := svc.Simulate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, a.Terminal, b.Terminal)
	assert.Equal(t, a.Risk, b.Risk)
	assert.Equal(t, uint64(7), a.Seed)
}

func TestService_SimulateFromCSV(t *testing.T) {
	csv := "Date,Open,High,Low,Close,Adj Close,Volume,Stock Name\n"
	prices := []string{"100", "101", "99", "102", "103", "101", "104", "106", "105", "107"}
	for i, p := range prices {
		csv += "2024-01-" + twoDigits(i+1) + "," + p + "," + p + "," + p + "," + p + "," + p + ",1000,TSLA\n"
	}
	csv += "2024-01-01,10,10,10,10,10,1000,AAPL\n"

	path := filepath.Join(t.TempDir(), "stocks.csv")
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	params := indicators.Params{MACDShort: 3, MACDLong: 6, MACDSignal: 3, BollingerWindow: 5, BollingerK: 2}
	svc := newTestService(Options{PricesCSV: path, Indicators: &params})

	rep, err := svc.Simulate(context.Background(), Request{Symbol: "TSLA", NumPaths: 10, NumSteps: 5, Seed: 1})
	require.NoError(t, err)
	assert.Equal(t, "TSLA", rep.Symbol)
	assert.Equal(t, path, rep.Source)
	assert.Equal(t, 10, rep.Observations)
	assert.Equal(t, 107.0, rep.StartPrice)
	require.NotNil(t, rep.Indicators)
	assert.GreaterOrEqual(t, rep.Indicators.MACDMax, rep.Indicators.MACDMin)

	summary, err := svc.Indicators(Request{Symbol: "TSLA"}, params)
	require.NoError(t, err)
	assert.Equal(t, rep.Indicators, summary)

	_, err = svc.Simulate(context.Background(), Request{Symbol: "MSFT", NumPaths: 1, NumSteps: 1})
	assert.ErrorIs(t, err, apperrors.ErrSymbolNotFound)
}

func TestService_DefaultSymbolSelectsCSVSeries(t *testing.T) {
	csv := "Date,Close,Stock Name\n" +
		"2024-01-01,100,TSLA\n2024-01-01,10,AAPL\n" +
		"2024-01-02,110,TSLA\n2024-01-02,20,AAPL\n" +
		"2024-01-03,121,TSLA\n2024-01-03,40,AAPL\n"
	path := filepath.Join(t.TempDir(), "stocks.csv")
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	svc := newTestService(Options{PricesCSV: path, DefaultSymbol: "TSLA"})
	rep, err := svc.Simulate(context.Background(), Request{NumPaths: 4, NumSteps: 2, Seed: 1})
	require.NoError(t, err)
	assert.Equal(t, "TSLA", rep.Symbol)
	assert.Equal(t, 3, rep.Observations)
	assert.InDelta(t, 0.10, rep.Stats.Mean, 1e-9)
	assert.InDelta(t, 0, rep.Stats.StdDev, 1e-9)

	unset := newTestService(Options{PricesCSV: path})
	_, err = unset.Simulate(context.Background(), Request{NumPaths: 1, NumSteps: 1})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestService_Errors(t *testing.T) {
	svc := newTestService(Options{})
	ctx := context.Background()

	_, err := svc.Simulate(ctx, Request{NumPaths: 1, NumSteps: 1})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = svc.Simulate(ctx, Request{Prices: []float64{100}, NumPaths: 1, NumSteps: 1})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientData)

	_, err = svc.Simulate(ctx, Request{Prices: []float64{100, 101}, NumPaths: 0, NumSteps: 1})
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfiguration)

	_, err = svc.Simulate(ctx, Request{Prices: []float64{100, 101}, NumPaths: 1, NumSteps: 1, Percentiles: []float64{150}})
	assert.ErrorIs(t, err, apperrors.ErrInvalidPercentile)
}

func TestService_StoreFailure(t *testing.T) {
	boom := errors.New("disk full")
	svc := newTestService(Options{}, WithStore(&memStore{err: boom}))

	rep, err := svc.Simulate(context.Background(), Request{Prices: []float64{100, 101}, NumPaths: 1, NumSteps: 1})
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, rep)
}

func TestBuildTailRisk(t *testing.T) {
	returns := []float64{-0.5, -0.3, -0.1, 0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6}
	risk, err := BuildTailRisk(returns, 0.25, 2)
	require.NoError(t, err)

	assert.Equal(t, 0.2, risk.LossProbability)
	assert.Equal(t, 2, risk.NonPositivePaths)
	assert.Equal(t, 0.25, risk.LossThreshold)
	assert.GreaterOrEqual(t, risk.VaR99, risk.VaR95)
	assert.GreaterOrEqual(t, risk.ES95, risk.VaR95)
	assert.InDelta(t, 0.5, risk.ES99, 1e-12)

	_, err = BuildTailRisk(nil, 0.25, 0)
	assert.ErrorIs(t, err, apperrors.ErrEmptyDistribution)
}

func twoDigits(n int) string {
	if n < 10 {
		return "0" + string(rune('0'+n))
	}
	return "1" + string(rune('0'+n-10))
}
