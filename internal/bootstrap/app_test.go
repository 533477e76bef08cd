package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"blackswan/internal/config"
	"blackswan/internal/pipeline"
	"blackswan/pkg/telemetry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcRunner func(ctx context.Context) error

func (f funcRunner) Run(ctx context.Context) error { return f(ctx) }

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Telemetry.EnableMetrics = false
	cfg.System.LogLevel = "ERROR"
	return cfg
}

func TestLoadConfig_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.Simulation.NumPaths)
}

func TestCheckPreFlight(t *testing.T) {
	cfg := testConfig(t)
	cfg.Data.PricesCSV = filepath.Join(t.TempDir(), "missing.csv")
	assert.Error(t, CheckPreFlight(cfg))

	csv := filepath.Join(t.TempDir(), "stocks.csv")
	require.NoError(t, os.WriteFile(csv, []byte("Date,Close\n"), 0o644))
	cfg.Data.PricesCSV = csv
	assert.NoError(t, CheckPreFlight(cfg))

	cfg.Store.Enabled = true
	cfg.Store.Path = filepath.Join(t.TempDir(), "nested", "missing", "runs.db")
	assert.Error(t, CheckPreFlight(cfg))

	cfg.Store.Path = filepath.Join(t.TempDir(), "runs.db")
	assert.NoError(t, CheckPreFlight(cfg))
}

func TestNewApp_WiresStoreAndPool(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Enabled = true
	cfg.Store.Path = filepath.Join(t.TempDir(), "runs.db")
	cfg.Concurrency.SimulationWorkers = 4

	app, err := NewApp(cfg)
	require.NoError(t, err)
	defer app.Close()

	require.NotNil(t, app.Store)
	require.NotNil(t, app.Pool)
	assert.Nil(t, app.Alerts)
	assert.Equal(t, []string{"store"}, app.Health.Components())

	rep, err := app.Service.Simulate(context.Background(), pipeline.Request{
		Prices:   []float64{100, 101, 99, 103},
		NumPaths: 16,
		NumSteps: 4,
		Seed:     5,
	})
	require.NoError(t, err)

	stored, err := app.Store.GetRun(context.Background(), rep.ID)
	require.NoError(t, err)
	assert.Equal(t, rep.Terminal.Median, stored.Terminal.Median)
}

func TestNewApp_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Simulation.NumPaths = 0
	_, err := NewApp(cfg)
	assert.Error(t, err)
}

func TestNewApp_TelemetryFailureReleasesApp(t *testing.T) {
	orig := initTelemetry
	t.Cleanup(func() { initTelemetry = orig })

	var calls int
	initTelemetry = func(cfg *Config) (*telemetry.Telemetry, error) {
		calls++
		return nil, errors.New("exporter unavailable")
	}

	cfg := testConfig(t)
	cfg.Telemetry.EnableMetrics = true
	cfg.Concurrency.SimulationWorkers = 2

	app, err := NewApp(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telemetry: exporter unavailable")
	assert.Nil(t, app)
	assert.Equal(t, 1, calls)
}

func TestApp_CloseWithPartialWiring(t *testing.T) {
	logger, err := InitLogger(testConfig(t))
	require.NoError(t, err)

	app := &App{Cfg: testConfig(t), Logger: logger}
	assert.NoError(t, app.Close())
}

func TestApp_RunStopsOnRunnerError(t *testing.T) {
	app, err := NewApp(testConfig(t))
	require.NoError(t, err)
	defer app.Close()

	boom := errors.New("boom")
	err = app.Run(context.Background(),
		funcRunner(func(ctx context.Context) error { return boom }),
		funcRunner(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}),
	)
	assert.ErrorIs(t, err, boom)
}

func TestApp_RunReturnsNilOnCancel(t *testing.T) {
	app, err := NewApp(testConfig(t))
	require.NoError(t, err)
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = app.Run(ctx, funcRunner(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	assert.NoError(t, err)
}
