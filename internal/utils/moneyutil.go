package utils

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var oneHundred = decimal.NewFromInt(100)

// RoundMoney rounds to the smallest currency unit using banker's rounding so
// repeated recomputation does not drift.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(2)
}

// PercentOf computes pct% of base, rounded to the smallest currency unit.
func PercentOf(base, pct decimal.Decimal) decimal.Decimal {
	return RoundMoney(base.Mul(pct).Div(oneHundred))
}

// ParseMoney parses a client-supplied amount and rejects negatives.
func ParseMoney(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount must not be negative")
	}
	return RoundMoney(d), nil
}
