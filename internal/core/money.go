// Package core provides money parsing and handling utilities.
//
// Amounts are kept as integer cents; decimal.Decimal is only used at the
// edges where text or JSON numbers come in.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a decimal string to cents with half-up rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators.
// Signs, exponents and empty input are rejected. Zero is allowed.
//
// Examples:
//
//	ParseAmount("12.34") -> 1234, nil
//	ParseAmount("12,34") -> 1234, nil
//	ParseAmount("12.345") -> 1235, nil
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.ContainsAny(s, "+-eE") {
		return Money{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	return MoneyFromDecimal(d)
}

// MoneyFromDecimal rounds d half-up to cents. Negative values are rejected.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	if d.IsNegative() {
		return Money{}, ErrInvalidAmount
	}
	cents := d.Shift(2).Round(0)
	if !cents.IsInteger() || cents.GreaterThan(decimal.NewFromInt(1<<62)) {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: cents.IntPart()}, nil
}

// Decimal returns the amount in whole units, e.g. 1234 cents -> 12.34.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String formats the amount with two decimals.
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}
