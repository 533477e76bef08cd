package indicators

import (
	"fmt"
	"math"

	apperrors "blackswan/pkg/errors"

	mstats "github.com/montanaflynn/stats"
)

// Params selects indicator periods
type Params struct {
	MACDShort       int     `json:"macd_short" yaml:"macd_short"`
	MACDLong        int     `json:"macd_long" yaml:"macd_long"`
	MACDSignal      int     `json:"macd_signal" yaml:"macd_signal"`
	BollingerWindow int     `json:"bollinger_window" yaml:"bollinger_window"`
	BollingerK      float64 `json:"bollinger_k" yaml:"bollinger_k"`
}

// DefaultParams returns MACD(12,26,9) and 20-period 2σ bands
func DefaultParams() Params {
	return Params{
		MACDShort:       DefaultMACDShort,
		MACDLong:        DefaultMACDLong,
		MACDSignal:      DefaultMACDSignal,
		BollingerWindow: DefaultBollingerWindow,
		BollingerK:      DefaultBollingerK,
	}
}

// Summary condenses the indicator series of a price history
type Summary struct {
	UpperBandMax   float64 `json:"upper_band_max"`
	LowerBandMin   float64 `json:"lower_band_min"`
	MiddleBandMean float64 `json:"middle_band_mean"`
	MACDMax        float64 `json:"macd_max"`
	MACDMin        float64 `json:"macd_min"`
	SignalMean     float64 `json:"signal_mean"`
}

// Summarize computes both indicators over closes and reduces them. NaN
// entries are ignored.
func Summarize(closes []float64, p Params) (*Summary, error) {
	if len(closes) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 closes, got %d", apperrors.ErrInsufficientData, len(closes))
	}
	macd, err := CalculateMACD(closes, p.MACDShort, p.MACDLong, p.MACDSignal)
	if err != nil {
		return nil, err
	}
	bands, err := CalculateBollinger(closes, p.BollingerWindow, p.BollingerK)
	if err != nil {
		return nil, err
	}

	s := &Summary{}
	if s.UpperBandMax, err = mstats.Max(finite(bands.Upper)); err != nil {
		return nil, err
	}
	if s.LowerBandMin, err = mstats.Min(finite(bands.Lower)); err != nil {
		return nil, err
	}
	if s.MiddleBandMean, err = mstats.Mean(finite(bands.Middle)); err != nil {
		return nil, err
	}
	if s.MACDMax, err = mstats.Max(macd.Line); err != nil {
		return nil, err
	}
	if s.MACDMin, err = mstats.Min(macd.Line); err != nil {
		return nil, err
	}
	if s.SignalMean, err = mstats.Mean(macd.Signal); err != nil {
		return nil, err
	}
	return s, nil
}

func finite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}
