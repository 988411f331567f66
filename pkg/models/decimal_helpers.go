package models

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// NewDecimal creates decimal from float64
func NewDecimal(value float64) decimal.Decimal {
	return decimal.NewFromFloat(value)
}

// PercentChange returns (latest-previous)/previous*100 rounded half-to-even to 2 places.
// Returns nil when previous is zero.
func PercentChange(latest, previous decimal.Decimal) *decimal.Decimal {
	if previous.IsZero() {
		return nil
	}
	change := latest.Sub(previous).Div(previous).Mul(hundred).RoundBank(2)
	return &change
}
