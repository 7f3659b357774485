package types

import "github.com/shopspring/decimal"

// Money is an exact monetary amount. Approval thresholds and document totals use it.
type Money = decimal.Decimal

// ParseMoney parses a decimal string.
func ParseMoney(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney is ParseMoney for constants and tests.
func MustMoney(s string) Money {
	return decimal.RequireFromString(s)
}

// ZeroMoney returns 0.
func ZeroMoney() Money {
	return decimal.Zero
}
