package simulation

import (
	"fmt"
	"math"

	apperrors "blackswan/pkg/errors"
)

// GeneratePath walks a price forward steps periods. Each step draws
// r = mean + stddev*z from src and applies P[k] = P[k-1] * (1 + r).
// Prices are not clamped: a draw at or below -1 takes the path to zero or
// below. The returned slice has steps+1 elements and starts at start.
func GeneratePath(start float64, steps int, stats ReturnStatistics, src NormalSource) ([]float64, error) {
	if !(start > 0) || math.IsInf(start, 0) {
		return nil, fmt.Errorf("%w: start price must be positive, got %v", apperrors.ErrInvalidConfiguration, start)
	}
	if steps < 1 {
		return nil, fmt.Errorf("%w: steps must be at least 1, got %d", apperrors.ErrInvalidConfiguration, steps)
	}
	path := make([]float64, steps+1)
	walk(path, start, stats, src, false)
	return path, nil
}

// walk fills path in place and reports whether the price touched zero or
// below. With floor set, the first non-positive price is replaced by zero,
// which is absorbing.
func walk(path []float64, start float64, stats ReturnStatistics, src NormalSource, floor bool) bool {
	path[0] = start
	touched := false
	for k := 1; k < len(path); k++ {
		r := stats.Mean + stats.StdDev*src.NormFloat64()
		p := path[k-1] * (1 + r)
		if p <= 0 {
			touched = true
			if floor {
				p = 0
			}
		}
		path[k] = p
	}
	return touched
}
