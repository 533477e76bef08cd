package simulation

import (
	"fmt"
	"math"

	apperrors "blackswan/pkg/errors"
)

// Config fully determines a run up to its randomness source
type Config struct {
	StartPrice float64          `json:"start_price"`
	NumPaths   int              `json:"num_paths"`
	NumSteps   int              `json:"num_steps"`
	Stats      ReturnStatistics `json:"return_statistics"`

	// FloorAtZero makes zero an absorbing price instead of letting the walk
	// go negative. Off by default.
	FloorAtZero bool `json:"floor_at_zero"`
}

// Validate checks the run preconditions
func (c Config) Validate() error {
	if c.NumPaths < 1 {
		return fmt.Errorf("%w: num_paths must be at least 1, got %d", apperrors.ErrInvalidConfiguration, c.NumPaths)
	}
	if c.NumSteps < 1 {
		return fmt.Errorf("%w: num_steps must be at least 1, got %d", apperrors.ErrInvalidConfiguration, c.NumSteps)
	}
	if !(c.StartPrice > 0) || math.IsInf(c.StartPrice, 0) {
		return fmt.Errorf("%w: start_price must be positive, got %v", apperrors.ErrInvalidConfiguration, c.StartPrice)
	}
	if math.IsNaN(c.Stats.Mean) || math.IsInf(c.Stats.Mean, 0) {
		return fmt.Errorf("%w: mean return must be finite, got %v", apperrors.ErrInvalidConfiguration, c.Stats.Mean)
	}
	if !(c.Stats.StdDev >= 0) || math.IsInf(c.Stats.StdDev, 0) {
		return fmt.Errorf("%w: return stddev must be finite and non-negative, got %v", apperrors.ErrInvalidConfiguration, c.Stats.StdDev)
	}
	return nil
}
