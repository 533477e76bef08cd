// Package pipeline turns a price history into a simulation report: load,
// estimate, simulate, summarize, persist and alert.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"blackswan/internal/alert"
	"blackswan/internal/core"
	"blackswan/internal/indicators"
	"blackswan/internal/marketdata"
	"blackswan/internal/report"
	"blackswan/internal/simulation"
	"blackswan/internal/stats"
	apperrors "blackswan/pkg/errors"
	"blackswan/pkg/telemetry"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RunStore persists finished reports
type RunStore interface {
	SaveRun(ctx context.Context, r *report.RunReport) error
}

// Alerter delivers notifications
type Alerter interface {
	Alert(ctx context.Context, title, message string, level alert.AlertLevel, fields map[string]string) error
}

// Options holds the defaults a Service applies to every request
type Options struct {
	PricesCSV  string
	DateLayout string
	// DefaultSymbol selects the CSV series for requests that name none
	DefaultSymbol string
	Percentiles   []float64

	// LossThreshold is the loss, as a fraction of the start price, counted
	// toward the loss probability.
	LossThreshold float64
	// LossProbabilityLimit raises a warning when exceeded. Zero disables it.
	LossProbabilityLimit float64

	// Indicators is nil to skip the indicator summary
	Indicators *indicators.Params
}

// Request describes one simulation
type Request struct {
	Symbol string `json:"symbol"`

	// Prices are used as the history when set; otherwise the CSV is read
	Prices  []float64 `json:"prices,omitempty"`
	CSVPath string    `json:"-"`

	// StartPrice of zero starts from the last observed price
	StartPrice  float64   `json:"start_price,omitempty"`
	NumPaths    int       `json:"num_paths"`
	NumSteps    int       `json:"num_steps"`
	Seed        uint64    `json:"seed,omitempty"`
	FloorAtZero bool      `json:"floor_at_zero,omitempty"`
	Percentiles []float64 `json:"percentiles,omitempty"`
}

// Service runs simulation requests
type Service struct {
	runner  *simulation.Runner
	store   RunStore
	alerter Alerter
	logger  core.ILogger
	opts    Options
	metrics *telemetry.MetricsHolder
	tracer  trace.Tracer

	now   func() time.Time
	newID func() string
}

// ServiceOption customizes a Service
type ServiceOption func(*Service)

// WithStore persists every successful report
func WithStore(s RunStore) ServiceOption {
	return func(svc *Service) { svc.store = s }
}

// WithAlerter sends tail-risk alerts
func WithAlerter(a Alerter) ServiceOption {
	return func(svc *Service) { svc.alerter = a }
}

// NewService creates a Service
func NewService(runner *simulation.Runner, logger core.ILogger, opts Options, svcOpts ...ServiceOption) *Service {
	if len(opts.Percentiles) == 0 {
		opts.Percentiles = stats.DefaultPercentiles
	}
	svc := &Service{
		runner:  runner,
		logger:  logger.WithField("component", "pipeline"),
		opts:    opts,
		metrics: telemetry.GetGlobalMetrics(),
		tracer:  telemetry.GetTracer("blackswan/pipeline"),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
	for _, o := range svcOpts {
		o(svc)
	}
	return svc
}

// history is the price input of a run
type history struct {
	symbol string
	source string
	closes []float64
}

// Simulate executes one request end to end
func (s *Service) Simulate(ctx context.Context, req Request) (*report.RunReport, error) {
	ctx, span := s.tracer.Start(ctx, "pipeline.Simulate", trace.WithAttributes(
		attribute.String("symbol", req.Symbol),
		attribute.Int("num_paths", req.NumPaths),
	))
	defer span.End()

	rep, err := s.simulate(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warn("Simulation failed", "symbol", req.Symbol, "error", err)
		return nil, err
	}
	return rep, nil
}

func (s *Service) simulate(ctx context.Context, req Request) (*report.RunReport, error) {
	started := time.Now()

	h, err := s.loadHistory(req)
	if err != nil {
		return nil, err
	}

	returnStats, err := simulation.EstimateReturnStatistics(h.closes)
	if err != nil {
		return nil, err
	}

	start := req.StartPrice
	if start == 0 {
		start = h.closes[len(h.closes)-1]
	}

	cfg := simulation.Config{
		StartPrice:  start,
		NumPaths:    req.NumPaths,
		NumSteps:    req.NumSteps,
		Stats:       returnStats,
		FloorAtZero: req.FloorAtZero,
	}

	streams := simulation.RandomStreams()
	if req.Seed != 0 {
		streams = simulation.SeededStreams(req.Seed)
	}

	res, err := s.runner.Run(ctx, cfg, streams)
	if err != nil {
		return nil, err
	}

	percentiles := req.Percentiles
	if len(percentiles) == 0 {
		percentiles = s.opts.Percentiles
	}
	terminal, err := stats.Summarize(res.Terminals, percentiles)
	if err != nil {
		return nil, err
	}
	returns, err := stats.Summarize(res.Returns, percentiles)
	if err != nil {
		return nil, err
	}
	risk, err := BuildTailRisk(res.Returns, s.opts.LossThreshold, res.NonPositivePaths)
	if err != nil {
		return nil, err
	}

	rep := &report.RunReport{
		ID:           s.newID(),
		CreatedAt:    s.now(),
		Symbol:       h.symbol,
		Source:       h.source,
		Observations: len(h.closes),
		StartPrice:   start,
		NumPaths:     cfg.NumPaths,
		NumSteps:     cfg.NumSteps,
		Seed:         req.Seed,
		FloorAtZero:  cfg.FloorAtZero,
		Stats:        returnStats,
		Terminal:     terminal,
		Returns:      returns,
		Risk:         risk,
	}

	if s.opts.Indicators != nil {
		summary, err := indicators.Summarize(h.closes, *s.opts.Indicators)
		if err != nil {
			// Too little history for indicators does not void the run
			s.logger.Warn("Skipping indicator summary", "symbol", h.symbol, "error", err)
		} else {
			rep.Indicators = summary
		}
	}

	rep.DurationMs = float64(time.Since(started).Microseconds()) / 1000

	if s.store != nil {
		if err := s.store.SaveRun(ctx, rep); err != nil {
			return nil, fmt.Errorf("persist run: %w", err)
		}
	}

	s.metrics.RecordRun(ctx, rep.Symbol, rep.NumPaths, risk.NonPositivePaths, rep.DurationMs)
	s.metrics.SetTerminalMedian(rep.Symbol, terminal.Median)
	s.metrics.SetLossProbability(rep.Symbol, risk.LossProbability)

	s.raiseAlerts(ctx, rep)

	s.logger.Info("Simulation complete",
		"run_id", rep.ID,
		"symbol", rep.Symbol,
		"paths", rep.NumPaths,
		"steps", rep.NumSteps,
		"terminal_median", terminal.Median,
		"loss_probability", risk.LossProbability,
		"nonpositive_paths", risk.NonPositivePaths,
	)
	return rep, nil
}

// Indicators loads the request's history and summarizes MACD and Bollinger
// Bands with p
func (s *Service) Indicators(req Request, p indicators.Params) (*indicators.Summary, error) {
	h, err := s.loadHistory(req)
	if err != nil {
		return nil, err
	}
	return indicators.Summarize(h.closes, p)
}

func (s *Service) loadHistory(req Request) (*history, error) {
	if len(req.Prices) > 0 {
		symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
		if symbol == "" {
			symbol = report.SourceInline
		}
		return &history{
			symbol: symbol,
			source: report.SourceInline,
			closes: req.Prices,
		}, nil
	}

	path := req.CSVPath
	if path == "" {
		path = s.opts.PricesCSV
	}
	if path == "" {
		return nil, fmt.Errorf("%w: no prices and no csv configured", apperrors.ErrInvalidInput)
	}

	symbol := req.Symbol
	if symbol == "" {
		symbol = s.opts.DefaultSymbol
	}
	series, err := marketdata.LoadFile(path, marketdata.LoadOptions{
		Symbol:     symbol,
		DateLayout: s.opts.DateLayout,
	})
	if err != nil {
		return nil, err
	}
	return &history{
		symbol: series.Symbol,
		source: path,
		closes: series.Closes(),
	}, nil
}

func (s *Service) raiseAlerts(ctx context.Context, rep *report.RunReport) {
	if s.alerter == nil {
		return
	}
	risk := rep.Risk
	fields := map[string]string{
		"run_id":           rep.ID,
		"symbol":           rep.Symbol,
		"paths":            fmt.Sprintf("%d", rep.NumPaths),
		"steps":            fmt.Sprintf("%d", rep.NumSteps),
		"loss_probability": fmt.Sprintf("%.4f", risk.LossProbability),
	}

	if risk.NonPositivePaths > 0 {
		msg := fmt.Sprintf("%d of %d simulated paths for %s reached a price of zero or below",
			risk.NonPositivePaths, rep.NumPaths, rep.Symbol)
		if err := s.alerter.Alert(ctx, "Black swan paths", msg, alert.Critical, fields); err != nil {
			s.logger.Error("Alert delivery failed", "run_id", rep.ID, "error", err)
		}
	}

	if limit := s.opts.LossProbabilityLimit; limit > 0 && risk.LossProbability > limit {
		msg := fmt.Sprintf("%.2f%% of simulated paths for %s lose at least %.2f%%, above the %.2f%% limit",
			risk.LossProbability*100, rep.Symbol, risk.LossThreshold*100, limit*100)
		if err := s.alerter.Alert(ctx, "Loss probability above limit", msg, alert.Warning, fields); err != nil {
			s.logger.Error("Alert delivery failed", "run_id", rep.ID, "error", err)
		}
	}
}
