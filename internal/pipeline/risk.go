package pipeline

import (
	"blackswan/internal/report"
	"blackswan/internal/stats"
)

// BuildTailRisk computes VaR and expected shortfall at 95% and 99% and the
// share of paths losing at least lossThreshold (a fraction) of the start
// price.
func BuildTailRisk(returns []float64, lossThreshold float64, nonPositive int) (report.TailRisk, error) {
	risk := report.TailRisk{
		LossThreshold:    lossThreshold,
		NonPositivePaths: nonPositive,
	}

	var err error
	if risk.VaR95, err = stats.ValueAtRisk(returns, 0.95); err != nil {
		return risk, err
	}
	if risk.VaR99, err = stats.ValueAtRisk(returns, 0.99); err != nil {
		return risk, err
	}
	if risk.ES95, err = stats.ExpectedShortfall(returns, 0.95); err != nil {
		return risk, err
	}
	if risk.ES99, err = stats.ExpectedShortfall(returns, 0.99); err != nil {
		return risk, err
	}
	if risk.LossProbability, err = stats.ShareAtOrBelow(returns, -lossThreshold); err != nil {
		return risk, err
	}
	return risk, nil
}
