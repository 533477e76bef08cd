package tradingutils

import (
	"math"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// RoundPrice rounds a price to the specified decimals
func RoundPrice(price decimal.Decimal, priceDecimals int) decimal.Decimal {
	return price.Round(int32(priceDecimals))
}

// FromFloat converts a float to a decimal. NaN and infinities map to zero
// and ok is false.
func FromFloat(v float64) (d decimal.Decimal, ok bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(v), true
}

// FormatPrice renders v with a fixed number of decimals
func FormatPrice(v float64, decimals int) string {
	d, ok := FromFloat(v)
	if !ok {
		return formatNonFinite(v)
	}
	return d.StringFixed(int32(decimals))
}

// FormatPercent renders a fraction (0.05) as a percentage ("5.00%")
func FormatPercent(fraction float64, decimals int) string {
	d, ok := FromFloat(fraction)
	if !ok {
		return formatNonFinite(fraction)
	}
	return d.Mul(hundred).StringFixed(int32(decimals)) + "%"
}

// PercentChange returns (to - from) / from. A zero base yields zero.
func PercentChange(from, to decimal.Decimal) decimal.Decimal {
	if from.IsZero() {
		return decimal.Zero
	}
	return to.Sub(from).Div(from)
}

func formatNonFinite(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	default:
		return "NaN"
	}
}
