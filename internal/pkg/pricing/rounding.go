package pricing

import "math"

// roundingEpsilon absorbs float dust (e.g. 1154.9999999998 from a chain of
// percentage multiplications) before flooring to the increment.
const roundingEpsilon = 1e-9

// PriceEpsilon is the tolerance used when comparing a computed price with
// the stored current price to decide whether anything changed.
const PriceEpsilon = 0.01

// RoundToIncrement floors a price to the nearest lower multiple of the
// increment. Flooring (rather than half-up rounding) is the charging rule:
// the rounded price never exceeds the computed candidate, so the bounds
// invariant survives rounding after a MaxPrice clamp. An increment <= 0
// leaves the price untouched.
func RoundToIncrement(price, increment float64) float64 {
	if increment <= 0 {
		return price
	}
	return math.Floor((price+roundingEpsilon)/increment) * increment
}

// CeilToIncrement raises a price to the nearest higher multiple of the
// increment. This is the escape hatch for a MinPrice that is not itself on
// the increment grid: flooring would land below it, so the price moves up
// to the next multiple instead.
func CeilToIncrement(price, increment float64) float64 {
	if increment <= 0 {
		return price
	}
	return math.Ceil((price-roundingEpsilon)/increment) * increment
}

// ClampToBounds forces the price into the configured [min, max] corridor.
// A zero bound is treated as unset.
func ClampToBounds(price, min, max float64) float64 {
	if min > 0 && price < min {
		return min
	}
	if max > 0 && price > max {
		return max
	}
	return price
}

// PricesEqual compares two prices within PriceEpsilon.
func PricesEqual(a, b float64) bool {
	return math.Abs(a-b) < PriceEpsilon
}
