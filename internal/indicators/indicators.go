// Package indicators computes the trend and volatility overlays reported
// alongside a simulation: MACD and Bollinger Bands.
package indicators

import (
	"fmt"
	"math"

	apperrors "blackswan/pkg/errors"

	mstats "github.com/montanaflynn/stats"
)

// Standard periods
const (
	DefaultMACDShort       = 12
	DefaultMACDLong        = 26
	DefaultMACDSignal      = 9
	DefaultBollingerWindow = 20
	DefaultBollingerK      = 2.0
)

// EMA returns the exponential moving average of values with smoothing
// 2/(span+1), seeded with the first value and updated recursively.
func EMA(values []float64, span int) ([]float64, error) {
	if span < 1 {
		return nil, fmt.Errorf("%w: ema span %d", apperrors.ErrInvalidInput, span)
	}
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out, nil
	}
	alpha := 2 / (float64(span) + 1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out, nil
}

// MACD is the moving average convergence divergence line and its signal
type MACD struct {
	Line   []float64
	Signal []float64
}

// Histogram returns Line - Signal
func (m *MACD) Histogram() []float64 {
	out := make([]float64, len(m.Line))
	for i := range m.Line {
		out[i] = m.Line[i] - m.Signal[i]
	}
	return out
}

// CalculateMACD computes EMA(short) - EMA(long) and its EMA(signal)
func CalculateMACD(closes []float64, short, long, signal int) (*MACD, error) {
	if short >= long {
		return nil, fmt.Errorf("%w: macd short period %d must be below long period %d", apperrors.ErrInvalidInput, short, long)
	}
	shortEMA, err := EMA(closes, short)
	if err != nil {
		return nil, err
	}
	longEMA, err := EMA(closes, long)
	if err != nil {
		return nil, err
	}

	line := make([]float64, len(closes))
	for i := range closes {
		line[i] = shortEMA[i] - longEMA[i]
	}
	sig, err := EMA(line, signal)
	if err != nil {
		return nil, err
	}
	return &MACD{Line: line, Signal: sig}, nil
}

// Bands holds Bollinger Bands. Upper and Lower are NaN where the window
// holds a single observation.
type Bands struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// CalculateBollinger computes a rolling mean over window (using however many
// observations are available at the start) and bands k sample standard
// deviations either side of it.
func CalculateBollinger(closes []float64, window int, k float64) (*Bands, error) {
	if window < 1 {
		return nil, fmt.Errorf("%w: bollinger window %d", apperrors.ErrInvalidInput, window)
	}
	b := &Bands{
		Upper:  make([]float64, len(closes)),
		Middle: make([]float64, len(closes)),
		Lower:  make([]float64, len(closes)),
	}
	for i := range closes {
		start := max(0, i-window+1)
		w := closes[start : i+1]

		mean, err := mstats.Mean(w)
		if err != nil {
			return nil, err
		}
		b.Middle[i] = mean

		if len(w) < 2 {
			b.Upper[i] = math.NaN()
			b.Lower[i] = math.NaN()
			continue
		}
		sd, err := mstats.StandardDeviationSample(w)
		if err != nil {
			return nil, err
		}
		b.Upper[i] = mean + k*sd
		b.Lower[i] = mean - k*sd
	}
	return b, nil
}
