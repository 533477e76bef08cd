// Package simulation implements the Monte Carlo price-path simulator: return
// statistics estimation, single path generation and the parallel runner.
package simulation

import (
	"fmt"
	"math"

	apperrors "blackswan/pkg/errors"

	"github.com/montanaflynn/stats"
)

// ReturnStatistics describes the per-period return distribution that drives
// the random walk. It is a value type; copies are independent.
type ReturnStatistics struct {
	Mean   float64 `json:"mean" yaml:"mean"`
	StdDev float64 `json:"stddev" yaml:"stddev"`
}

// PeriodReturns returns the fractional changes (p[i]-p[i-1])/p[i-1] for
// i = 1..n-1. The result has one element fewer than prices.
func PeriodReturns(prices []float64) ([]float64, error) {
	if len(prices) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 prices, got %d", apperrors.ErrInsufficientData, len(prices))
	}
	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1]
		if prev == 0 {
			return nil, fmt.Errorf("%w: zero price at index %d", apperrors.ErrInsufficientData, i-1)
		}
		returns[i-1] = (prices[i] - prev) / prev
	}
	return returns, nil
}

// EstimateReturnStatistics computes the mean and sample standard deviation
// (n-1 denominator) of the period returns of prices. A single return has a
// standard deviation of zero.
func EstimateReturnStatistics(prices []float64) (ReturnStatistics, error) {
	returns, err := PeriodReturns(prices)
	if err != nil {
		return ReturnStatistics{}, err
	}

	mean, err := stats.Mean(returns)
	if err != nil {
		return ReturnStatistics{}, fmt.Errorf("%w: %v", apperrors.ErrInsufficientData, err)
	}

	var stdDev float64
	if len(returns) > 1 {
		stdDev, err = stats.StandardDeviationSample(returns)
		if err != nil {
			return ReturnStatistics{}, fmt.Errorf("%w: %v", apperrors.ErrInsufficientData, err)
		}
	}

	if math.IsNaN(mean) || math.IsInf(mean, 0) || math.IsNaN(stdDev) || math.IsInf(stdDev, 0) {
		return ReturnStatistics{}, fmt.Errorf("%w: non-finite return statistics", apperrors.ErrInsufficientData)
	}

	return ReturnStatistics{Mean: mean, StdDev: stdDev}, nil
}
