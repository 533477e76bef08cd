// Package concurrency runs fan-out work on a bounded alitto/pond pool
package concurrency

import (
	"context"
	"time"

	"blackswan/internal/core"

	"github.com/alitto/pond"
)

// PoolConfig holds configuration for a worker pool
type PoolConfig struct {
	Name        string
	MaxWorkers  int
	MaxCapacity int // queued tasks before RunGroup blocks
	IdleTimeout time.Duration
}

// PoolStats is a point-in-time view of pool activity
type PoolStats struct {
	Name            string `json:"name"`
	MaxWorkers      int    `json:"max_workers"`
	RunningWorkers  int    `json:"running_workers"`
	IdleWorkers     int    `json:"idle_workers"`
	SubmittedTasks  uint64 `json:"submitted_tasks"`
	WaitingTasks    uint64 `json:"waiting_tasks"`
	SuccessfulTasks uint64 `json:"successful_tasks"`
	FailedTasks     uint64 `json:"failed_tasks"`
}

// WorkerPool wraps alitto/pond with a logger and group execution
type WorkerPool struct {
	pool   *pond.WorkerPool
	config PoolConfig
	logger core.ILogger
}

// NewWorkerPool creates a new worker pool. Zero values fall back to 10
// workers, a queue of 100 and a one minute idle timeout.
func NewWorkerPool(cfg PoolConfig, logger core.ILogger) *WorkerPool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 10
	}
	if cfg.MaxCapacity <= 0 {
		cfg.MaxCapacity = 100
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = time.Minute
	}

	logger = logger.WithFields(map[string]interface{}{
		"component": "worker_pool",
		"pool":      cfg.Name,
	})

	pool := pond.New(
		cfg.MaxWorkers,
		cfg.MaxCapacity,
		pond.MinWorkers(1),
		pond.IdleTimeout(cfg.IdleTimeout),
		pond.Strategy(pond.Balanced()),
		pond.PanicHandler(func(p interface{}) {
			logger.Error("Worker panic recovered", "panic", p)
		}),
	)

	return &WorkerPool{
		pool:   pool,
		config: cfg,
		logger: logger,
	}
}

// Size returns the maximum number of concurrent workers
func (wp *WorkerPool) Size() int {
	return wp.config.MaxWorkers
}

// RunGroup runs every task on the pool and waits for all of them. The first
// task error cancels the group context handed to the remaining tasks and is
// returned. A canceled parent context is reported even when every task was
// skipped. Tasks should check ctx between units of work.
func (wp *WorkerPool) RunGroup(ctx context.Context, tasks []func(ctx context.Context) error) error {
	group, groupCtx := wp.pool.GroupContext(ctx)
	for _, task := range tasks {
		task := task
		group.Submit(func() error {
			return task(groupCtx)
		})
	}
	err := group.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		wp.logger.Debug("Task group aborted", "tasks", len(tasks), "error", err)
	}
	return err
}

// Stop waits for queued tasks and stops the workers
func (wp *WorkerPool) Stop() {
	wp.pool.StopAndWait()
}

// Stats returns pool statistics
func (wp *WorkerPool) Stats() PoolStats {
	return PoolStats{
		Name:            wp.config.Name,
		MaxWorkers:      wp.config.MaxWorkers,
		RunningWorkers:  wp.pool.RunningWorkers(),
		IdleWorkers:     wp.pool.IdleWorkers(),
		SubmittedTasks:  wp.pool.SubmittedTasks(),
		WaitingTasks:    wp.pool.WaitingTasks(),
		SuccessfulTasks: wp.pool.SuccessfulTasks(),
		FailedTasks:     wp.pool.FailedTasks(),
	}
}
