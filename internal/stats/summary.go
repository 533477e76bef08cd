// Package stats summarizes simulated distributions
package stats

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"

	apperrors "blackswan/pkg/errors"

	mstats "github.com/montanaflynn/stats"
)

// DefaultPercentiles is the 95% band around the median reported for terminal prices
var DefaultPercentiles = []float64{2.5, 50, 97.5}

// Summary describes a distribution of simulated values.
// StdDev is the sample standard deviation (n-1 denominator), zero for a
// single value.
type Summary struct {
	Count       int         `json:"count"`
	Mean        float64     `json:"mean"`
	Median      float64     `json:"median"`
	StdDev      float64     `json:"stddev"`
	Min         float64     `json:"min"`
	Max         float64     `json:"max"`
	Percentiles Percentiles `json:"percentiles"`
}

// Percentiles maps a level in [0, 100] to its value. It encodes as a JSON
// object keyed by the level's shortest decimal form ("2.5", "50").
type Percentiles map[float64]float64

// MarshalJSON implements json.Marshaler
func (p Percentiles) MarshalJSON() ([]byte, error) {
	out := make(map[string]float64, len(p))
	for q, v := range p {
		out[strconv.FormatFloat(q, 'f', -1, 64)] = v
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler
func (p *Percentiles) UnmarshalJSON(data []byte) error {
	var raw map[string]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Percentiles, len(raw))
	for k, v := range raw {
		q, err := strconv.ParseFloat(k, 64)
		if err != nil {
			return fmt.Errorf("percentile key %q: %w", k, err)
		}
		out[q] = v
	}
	*p = out
	return nil
}

// Percentile returns the value at level q (0..100) of an ascending slice,
// interpolating linearly between the order statistics around rank
// q/100*(n-1).
func Percentile(sorted []float64, q float64) (float64, error) {
	if len(sorted) == 0 {
		return 0, apperrors.ErrEmptyDistribution
	}
	if math.IsNaN(q) || q < 0 || q > 100 {
		return 0, fmt.Errorf("%w: %v is outside [0, 100]", apperrors.ErrInvalidPercentile, q)
	}
	rank := q / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo], nil
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac, nil
}

// Summarize computes mean, median, sample standard deviation, min, max and
// the requested percentiles of values. values is not modified.
func Summarize(values []float64, percentiles []float64) (*Summary, error) {
	if len(values) == 0 {
		return nil, apperrors.ErrEmptyDistribution
	}
	for _, q := range percentiles {
		if math.IsNaN(q) || q < 0 || q > 100 {
			return nil, fmt.Errorf("%w: %v is outside [0, 100]", apperrors.ErrInvalidPercentile, q)
		}
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	mean, err := mstats.Mean(sorted)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrEmptyDistribution, err)
	}

	var stdDev float64
	if len(sorted) > 1 {
		if stdDev, err = mstats.StandardDeviationSample(sorted); err != nil {
			return nil, err
		}
	}

	median, err := Percentile(sorted, 50)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Count:       len(sorted),
		Mean:        mean,
		Median:      median,
		StdDev:      stdDev,
		Min:         sorted[0],
		Max:         sorted[len(sorted)-1],
		Percentiles: make(Percentiles, len(percentiles)),
	}
	for _, q := range percentiles {
		v, err := Percentile(sorted, q)
		if err != nil {
			return nil, err
		}
		summary.Percentiles[q] = v
	}
	return summary, nil
}
