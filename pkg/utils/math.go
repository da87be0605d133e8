// Package utils holds small shared numeric helpers.
package utils

import "github.com/shopspring/decimal"

// RoundDecimal rounds a decimal to a specific number of decimal places.
func RoundDecimal(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Round(places)
}

// PercentChange calculates the percentage change between two values.
func PercentChange(oldValue, newValue decimal.Decimal) decimal.Decimal {
	if oldValue.IsZero() {
		return decimal.Zero
	}
	return newValue.Sub(oldValue).Div(oldValue).Mul(decimal.NewFromInt(100))
}

// MaxDecimal returns the maximum of two decimals.
func MaxDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}
