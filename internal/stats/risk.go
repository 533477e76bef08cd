package stats

import (
	"fmt"
	"slices"

	apperrors "blackswan/pkg/errors"
)

// ValueAtRisk returns the loss, as a positive fraction, that the returns
// distribution exceeds with probability 1-confidence. confidence is a
// fraction such as 0.95. A distribution with no losses at that level yields
// a negative value.
func ValueAtRisk(returns []float64, confidence float64) (float64, error) {
	if err := checkConfidence(confidence); err != nil {
		return 0, err
	}
	sorted := slices.Clone(returns)
	slices.Sort(sorted)
	q, err := Percentile(sorted, (1-confidence)*100)
	if err != nil {
		return 0, err
	}
	return -q, nil
}

// ExpectedShortfall returns the mean loss of the returns at or below the
// (1-confidence) percentile, as a positive fraction.
func ExpectedShortfall(returns []float64, confidence float64) (float64, error) {
	if err := checkConfidence(confidence); err != nil {
		return 0, err
	}
	sorted := slices.Clone(returns)
	slices.Sort(sorted)
	cutoff, err := Percentile(sorted, (1-confidence)*100)
	if err != nil {
		return 0, err
	}

	var sum float64
	var n int
	for _, r := range sorted {
		if r > cutoff {
			break
		}
		sum += r
		n++
	}
	return -sum / float64(n), nil
}

// ShareAtOrBelow returns the fraction of values less than or equal to threshold
func ShareAtOrBelow(values []float64, threshold float64) (float64, error) {
	if len(values) == 0 {
		return 0, apperrors.ErrEmptyDistribution
	}
	var n int
	for _, v := range values {
		if v <= threshold {
			n++
		}
	}
	return float64(n) / float64(len(values)), nil
}

func checkConfidence(confidence float64) error {
	if !(confidence > 0 && confidence < 1) {
		return fmt.Errorf("%w: confidence %v must be in (0, 1)", apperrors.ErrInvalidPercentile, confidence)
	}
	return nil
}
