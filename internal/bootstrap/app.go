package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"blackswan/internal/alert"
	"blackswan/internal/indicators"
	"blackswan/internal/infrastructure/health"
	"blackswan/internal/pipeline"
	"blackswan/internal/simulation"
	"blackswan/internal/store"
	"blackswan/pkg/concurrency"
	"blackswan/pkg/logging"
	"blackswan/pkg/telemetry"

	"golang.org/x/sync/errgroup"
)

// App represents the application context and holds core dependencies.
type App struct {
	Cfg       *Config
	Logger    *logging.ZapLogger
	Telemetry *telemetry.Telemetry
	Pool      *concurrency.WorkerPool
	Store     *store.SQLiteStore // nil when the store is disabled
	Alerts    *alert.AlertManager
	Health    *health.HealthManager
	Service   *pipeline.Service
}

// NewApp wires every dependency for an already loaded configuration
func NewApp(cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := CheckPreFlight(cfg); err != nil {
		return nil, fmt.Errorf("pre-flight checks failed: %w", err)
	}

	logger, err := InitLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	app := &App{Cfg: cfg, Logger: logger}
	wired := false
	defer func() {
		if !wired {
			_ = app.Close()
		}
	}()

	if cfg.Telemetry.EnableMetrics || cfg.Telemetry.TraceStdout {
		tel, err := initTelemetry(cfg)
		if err != nil {
			return nil, fmt.Errorf("telemetry: %w", err)
		}
		app.Telemetry = tel
	}

	app.Health = health.NewHealthManager(logger)

	var runnerOpts []simulation.RunnerOption
	if cfg.Concurrency.SimulationWorkers > 0 {
		app.Pool = concurrency.NewWorkerPool(concurrency.PoolConfig{
			Name:        "simulation",
			MaxWorkers:  cfg.Concurrency.SimulationWorkers,
			MaxCapacity: cfg.Concurrency.SimulationBuffer,
		}, logger)
		runnerOpts = append(runnerOpts, simulation.WithPool(app.Pool), simulation.WithChunkSize(cfg.Concurrency.ChunkSize))
	}
	runner := simulation.NewRunner(logger, runnerOpts...)

	var svcOpts []pipeline.ServiceOption
	if cfg.Store.Enabled {
		st, err := store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("store: %w", err)
		}
		app.Store = st
		app.Health.RegisterPinger("store", st, 2*time.Second)
		svcOpts = append(svcOpts, pipeline.WithStore(st))
	}

	if cfg.Alert.Enabled {
		app.Alerts = alert.NewAlertManager(logger, alert.WithChannelTimeout(time.Duration(cfg.Alert.TimeoutSeconds)*time.Second))
		if cfg.Alert.SlackWebhookURL.IsSet() {
			app.Alerts.AddChannel(alert.NewSlackChannel(cfg.Alert.SlackWebhookURL.Reveal()))
		}
		if cfg.Alert.TelegramBotToken.IsSet() {
			app.Alerts.AddChannel(alert.NewTelegramChannel(cfg.Alert.TelegramBotToken.Reveal(), cfg.Alert.TelegramChatID))
		}
		svcOpts = append(svcOpts, pipeline.WithAlerter(app.Alerts))
	}

	opts := pipeline.Options{
		PricesCSV:            cfg.Data.PricesCSV,
		DateLayout:           cfg.Data.DateLayout,
		DefaultSymbol:        cfg.Data.Symbol,
		Percentiles:          cfg.Simulation.Percentiles,
		LossThreshold:        cfg.Alert.LossThreshold,
		LossProbabilityLimit: cfg.Alert.LossProbability,
	}
	if cfg.Indicators.Enabled {
		p := IndicatorParams(cfg)
		opts.Indicators = &p
	}
	app.Service = pipeline.NewService(runner, logger, opts, svcOpts...)

	wired = true
	return app, nil
}

// IndicatorParams converts the indicators section
func IndicatorParams(cfg *Config) indicators.Params {
	return indicators.Params{
		MACDShort:       cfg.Indicators.MACDShort,
		MACDLong:        cfg.Indicators.MACDLong,
		MACDSignal:      cfg.Indicators.MACDSignal,
		BollingerWindow: cfg.Indicators.BollingerWindow,
		BollingerK:      cfg.Indicators.BollingerK,
	}
}

// Runner is an interface for components that can be run and stopped gracefully.
type Runner interface {
	Run(ctx context.Context) error
}

// Run orchestrates the runners until they finish or a termination signal
// arrives.
func (a *App) Run(ctx context.Context, runners ...Runner) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	a.Logger.Info("starting application", "mode", a.Cfg.App.Mode)

	for _, runner := range runners {
		r := runner
		g.Go(func() error {
			return r.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error("application stopped with error", "error", err)
		return err
	}

	a.Logger.Info("application shut down gracefully")
	return nil
}

// Close releases the pool, store and telemetry providers
func (a *App) Close() error {
	var errs []error
	if a.Pool != nil {
		a.Pool.Stop()
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.Telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errs = append(errs, a.Telemetry.Shutdown(ctx))
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return errors.Join(errs...)
}
