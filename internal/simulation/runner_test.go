package simulation

import (
	"context"
	"testing"

	"blackswan/pkg/concurrency"
	apperrors "blackswan/pkg/errors"
	"blackswan/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, workers int) *concurrency.WorkerPool {
	t.Helper()
	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "simulation-test",
		MaxWorkers:  workers,
		MaxCapacity: 64,
	}, logging.NewNopLogger())
	t.Cleanup(pool.Stop)
	return pool
}

func testConfig() Config {
	return Config{
		StartPrice: 100,
		NumPaths:   250,
		NumSteps:   30,
		Stats:      ReturnStatistics{Mean: 0.0005, StdDev: 0.02},
	}
}

func TestRunner_ShapeInvariants(t *testing.T) {
	runner := NewRunner(logging.NewNopLogger(), WithPool(newTestPool(t, 4)))
	cfg := testConfig()

	res, err := runner.Run(context.Background(), cfg, SeededStreams(7))
	require.NoError(t, err)

	require.Len(t, res.Paths, cfg.NumPaths)
	require.Len(t, res.Terminals, cfg.NumPaths)
	require.Len(t, res.Returns, cfg.NumPaths)
	assert.Equal(t, cfg, res.Config)

	for i, path := range res.Paths {
		require.Len(t, path, cfg.NumSteps+1)
		assert.Equal(t, cfg.StartPrice, path[0])
		assert.Equal(t, path[cfg.NumSteps], res.Terminals[i])
		assert.InDelta(t, (res.Terminals[i]-cfg.StartPrice)/cfg.StartPrice, res.Returns[i], 1e-15)
	}
}

func TestRunner_FlatLine(t *testing.T) {
	runner := NewRunner(logging.NewNopLogger())
	cfg := Config{StartPrice: 100, NumPaths: 1, NumSteps: 3}

	res, err := runner.Run(context.Background(), cfg, SeededStreams(1))
	require.NoError(t, err)

	require.Len(t, res.Paths, 1)
	assert.Equal(t, []float64{100, 100, 100, 100}, res.Paths[0])
	assert.Equal(t, []float64{100}, res.Terminals)
	assert.Equal(t, []float64{0}, res.Returns)
	assert.Equal(t, 0, res.NonPositivePaths)
}

func TestRunner_SeededRunsAreIdentical(t *testing.T) {
	cfg := testConfig()
	ctx := context.Background()

	sequential, err := NewRunner(logging.NewNopLogger()).Run(ctx, cfg, SeededStreams(99))
	require.NoError(t, err)

	again, err := NewRunner(logging.NewNopLogger()).Run(ctx, cfg, SeededStreams(99))
	require.NoError(t, err)
	assert.Equal(t, sequential, again)

	// Parallel scheduling and chunking must not change which draws a path sees
	parallel, err := NewRunner(logging.NewNopLogger(), WithPool(newTestPool(t, 8)), WithChunkSize(7)).
		Run(ctx, cfg, SeededStreams(99))
	require.NoError(t, err)
	assert.Equal(t, sequential, parallel)

	other, err := NewRunner(logging.NewNopLogger()).Run(ctx, cfg, SeededStreams(100))
	require.NoError(t, err)
	assert.NotEqual(t, sequential.Terminals, other.Terminals)
}

func TestRunner_RandomStreamsDiffer(t *testing.T) {
	runner := NewRunner(logging.NewNopLogger())
	cfg := testConfig()

	a, err := runner.Run(context.Background(), cfg, RandomStreams())
	require.NoError(t, err)
	b, err := runner.Run(context.Background(), cfg, RandomStreams())
	require.NoError(t, err)
	assert.NotEqual(t, a.Terminals, b.Terminals)
}

func TestRunner_InvalidConfiguration(t *testing.T) {
	runner := NewRunner(logging.NewNopLogger())
	base := testConfig()

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero paths", func(c *Config) { c.NumPaths = 0 }},
		{"negative paths", func(c *Config) { c.NumPaths = -3 }},
		{"zero steps", func(c *Config) { c.NumSteps = 0 }},
		{"zero start price", func(c *Config) { c.StartPrice = 0 }},
		{"negative start price", func(c *Config) { c.StartPrice = -1 }},
		{"negative stddev", func(c *Config) { c.Stats.StdDev = -0.1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			res, err := runner.Run(context.Background(), cfg, SeededStreams(1))
			assert.ErrorIs(t, err, apperrors.ErrInvalidConfiguration)
			assert.Nil(t, res)
		})
	}
}

func TestRunner_CountsNonPositivePaths(t *testing.T) {
	runner := NewRunner(logging.NewNopLogger())
	cfg := Config{
		StartPrice: 10,
		NumPaths:   2,
		NumSteps:   2,
		Stats:      ReturnStatistics{Mean: 0, StdDev: 1},
	}

	// Path 0 crashes through zero, path 1 rallies
	streams := func(i int) NormalSource {
		if i == 0 {
			return &scriptedSource{draws: []float64{-3}}
		}
		return &scriptedSource{draws: []float64{0.5}}
	}

	res, err := runner.Run(context.Background(), cfg, streams)
	require.NoError(t, err)
	assert.Equal(t, 1, res.NonPositivePaths)
	assert.Less(t, res.Paths[0][1], 0.0)

	cfg.FloorAtZero = true
	res, err = runner.Run(context.Background(), cfg, streams)
	require.NoError(t, err)
	assert.Equal(t, 1, res.NonPositivePaths)
	assert.Equal(t, []float64{10, 0, 0}, res.Paths[0])
	assert.Equal(t, -1.0, res.Returns[0])
}

func TestRunner_CanceledContext(t *testing.T) {
	runner := NewRunner(logging.NewNopLogger(), WithPool(newTestPool(t, 2)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := runner.Run(ctx, testConfig(), SeededStreams(1))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
}
