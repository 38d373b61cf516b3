package model

import (
	"github.com/shopspring/decimal"
)

// ParsePrice converts a decimal string amount in major units to a decimal.
// Handles edge cases the same way across every wire format: empty or
// malformed strings become zero.
// Examples: "99.00" → 99, "1234.56" → 1234.56, "" → 0
func ParsePrice(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// MinorUnits converts a major-unit amount to integer minor units (cents),
// rounding half away from zero. Payment providers take amounts in this form.
// Examples: 99.00 → 9900, 1234.565 → 123457
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinorUnits converts integer minor units back to a major-unit decimal.
func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// LineTotal returns price × quantity.
func LineTotal(price decimal.Decimal, quantity int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(quantity)))
}
