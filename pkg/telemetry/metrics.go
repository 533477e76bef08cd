package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricRunsTotal             = "blackswan_simulation_runs_total"
	MetricPathsTotal            = "blackswan_simulation_paths_total"
	MetricRunDuration           = "blackswan_simulation_duration_ms"
	MetricNonPositivePathsTotal = "blackswan_nonpositive_paths_total"
	MetricTerminalMedian        = "blackswan_terminal_median"
	MetricLossProbability       = "blackswan_loss_probability"
)

// MetricsHolder holds initialized instruments
type MetricsHolder struct {
	RunsTotal             metric.Int64Counter
	PathsTotal            metric.Int64Counter
	RunDuration           metric.Float64Histogram
	NonPositivePathsTotal metric.Int64Counter
	TerminalMedian        metric.Float64ObservableGauge
	LossProbability       metric.Float64ObservableGauge

	// State for observable gauges
	mu                 sync.RWMutex
	terminalMedianMap  map[string]float64
	lossProbabilityMap map[string]float64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder. Until Setup runs the
// instruments are bound to the global delegating meter, so recording is
// always safe.
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			terminalMedianMap:  make(map[string]float64),
			lossProbabilityMap: make(map[string]float64),
		}
		_ = globalMetrics.InitMetrics(otel.GetMeterProvider().Meter("blackswan"))
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.RunsTotal, err = meter.Int64Counter(MetricRunsTotal, metric.WithDescription("Completed simulation runs"))
	if err != nil {
		return err
	}

	m.PathsTotal, err = meter.Int64Counter(MetricPathsTotal, metric.WithDescription("Simulated price paths"))
	if err != nil {
		return err
	}

	m.RunDuration, err = meter.Float64Histogram(MetricRunDuration, metric.WithDescription("Wall time of a simulation run"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	m.NonPositivePathsTotal, err = meter.Int64Counter(MetricNonPositivePathsTotal, metric.WithDescription("Paths whose price reached zero or below"))
	if err != nil {
		return err
	}

	m.TerminalMedian, err = meter.Float64ObservableGauge(MetricTerminalMedian, metric.WithDescription("Median terminal price of the latest run"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, val := range m.terminalMedianMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.LossProbability, err = meter.Float64ObservableGauge(MetricLossProbability, metric.WithDescription("Share of paths losing more than the alert threshold in the latest run"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, val := range m.lossProbabilityMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// RecordRun records the counters and latency of one finished run
func (m *MetricsHolder) RecordRun(ctx context.Context, symbol string, paths, nonPositive int, durationMs float64) {
	attrs := metric.WithAttributes(attribute.String("symbol", symbol))
	m.RunsTotal.Add(ctx, 1, attrs)
	m.PathsTotal.Add(ctx, int64(paths), attrs)
	m.RunDuration.Record(ctx, durationMs, attrs)
	if nonPositive > 0 {
		m.NonPositivePathsTotal.Add(ctx, int64(nonPositive), attrs)
	}
}

// Helpers to update observable state

func (m *MetricsHolder) SetTerminalMedian(symbol string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminalMedianMap[symbol] = value
}

func (m *MetricsHolder) SetLossProbability(symbol string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lossProbabilityMap[symbol] = value
}

func (m *MetricsHolder) GetTerminalMedian() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]float64, len(m.terminalMedianMap))
	for k, v := range m.terminalMedianMap {
		result[k] = v
	}
	return result
}

func (m *MetricsHolder) GetLossProbability() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]float64, len(m.lossProbabilityMap))
	for k, v := range m.lossProbabilityMap {
		result[k] = v
	}
	return result
}
