package evm

import "github.com/shopspring/decimal"

// Rounding convention: currency amounts quantize to 2 decimal places,
// ratios and indices to 4, both half-away-from-zero. Sums are accumulated
// at full precision and quantized exactly once at the reporting boundary,
// so the same inputs always reproduce the same bits.

// QuantizeCurrency rounds a currency amount to 2 decimal places.
func QuantizeCurrency(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// QuantizeRatio rounds a ratio or index to 4 decimal places.
func QuantizeRatio(d decimal.Decimal) decimal.Decimal {
	return d.Round(4)
}

// SumDecimals adds values at full precision, starting from exact zero.
func SumDecimals(values ...decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum
}
