package simulation

import (
	"context"
	"time"

	"blackswan/internal/core"
	"blackswan/pkg/concurrency"
	"blackswan/pkg/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Result holds every simulated path plus the derived terminal and total
// return distributions. Callers must treat it as read-only.
type Result struct {
	Config    Config      `json:"config"`
	Paths     [][]float64 `json:"paths"`
	Terminals []float64   `json:"terminals"`
	Returns   []float64   `json:"returns"`

	// NonPositivePaths counts paths that reached a price of zero or below
	NonPositivePaths int `json:"nonpositive_paths"`
}

// Runner generates independent paths, in parallel when a pool is attached
type Runner struct {
	pool      *concurrency.WorkerPool
	logger    core.ILogger
	chunkSize int
	tracer    trace.Tracer
}

// RunnerOption customizes a Runner
type RunnerOption func(*Runner)

// WithPool distributes path generation over pool
func WithPool(pool *concurrency.WorkerPool) RunnerOption {
	return func(r *Runner) { r.pool = pool }
}

// WithChunkSize sets how many paths one pool task generates. Zero picks a
// size from the pool width.
func WithChunkSize(n int) RunnerOption {
	return func(r *Runner) { r.chunkSize = n }
}

// NewRunner creates a runner. Without WithPool paths are generated
// sequentially on the calling goroutine.
func NewRunner(logger core.ILogger, opts ...RunnerOption) *Runner {
	r := &Runner{
		logger: logger.WithField("component", "simulation_runner"),
		tracer: telemetry.GetTracer("blackswan/simulation"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run simulates cfg.NumPaths paths of cfg.NumSteps steps. Path i draws only
// from streams(i). On error no partial result is returned.
func (r *Runner) Run(ctx context.Context, cfg Config, streams StreamFactory) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, span := r.tracer.Start(ctx, "simulation.Run", trace.WithAttributes(
		attribute.Int("num_paths", cfg.NumPaths),
		attribute.Int("num_steps", cfg.NumSteps),
		attribute.Float64("start_price", cfg.StartPrice),
	))
	defer span.End()

	started := time.Now()

	res := &Result{
		Config:    cfg,
		Paths:     make([][]float64, cfg.NumPaths),
		Terminals: make([]float64, cfg.NumPaths),
		Returns:   make([]float64, cfg.NumPaths),
	}
	touched := make([]bool, cfg.NumPaths)

	// Each index is written by exactly one task
	gen := func(ctx context.Context, lo, hi int) error {
		for i := lo; i < hi; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			path := make([]float64, cfg.NumSteps+1)
			touched[i] = walk(path, cfg.StartPrice, cfg.Stats, streams(i), cfg.FloorAtZero)
			res.Paths[i] = path
			res.Terminals[i] = path[cfg.NumSteps]
			res.Returns[i] = (path[cfg.NumSteps] - cfg.StartPrice) / cfg.StartPrice
		}
		return nil
	}

	var err error
	if r.pool == nil {
		err = gen(ctx, 0, cfg.NumPaths)
	} else {
		err = r.runParallel(ctx, cfg.NumPaths, gen)
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn("Simulation aborted", "error", err)
		return nil, err
	}

	for _, t := range touched {
		if t {
			res.NonPositivePaths++
		}
	}

	span.SetAttributes(attribute.Int("nonpositive_paths", res.NonPositivePaths))
	r.logger.Debug("Simulation finished",
		"paths", cfg.NumPaths,
		"steps", cfg.NumSteps,
		"nonpositive_paths", res.NonPositivePaths,
		"elapsed", time.Since(started).String())

	return res, nil
}

func (r *Runner) runParallel(ctx context.Context, n int, gen func(ctx context.Context, lo, hi int) error) error {
	chunk := r.chunkSize
	if chunk <= 0 {
		// Aim for about four chunks per worker
		chunk = n / (r.pool.Size() * 4)
		if chunk < 1 {
			chunk = 1
		}
	}

	tasks := make([]func(ctx context.Context) error, 0, (n+chunk-1)/chunk)
	for lo := 0; lo < n; lo += chunk {
		lo, hi := lo, min(lo+chunk, n)
		tasks = append(tasks, func(ctx context.Context) error {
			return gen(ctx, lo, hi)
		})
	}
	return r.pool.RunGroup(ctx, tasks)
}
