// Package core provides the domain types shared by the reconciler and its adapters.
//
// This file contains money arithmetic. Amounts are integer minor units; halving goes
// through decimal arithmetic so odd amounts round the same way the ledger's own
// decimal-to-cents conversion does (half to even).
package core

import (
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is used by Display when no currency code is given.
const DefaultCurrency = money.EUR

// NewMoney wraps a cents amount.
func NewMoney(cents int64) Money {
	return Money{Cents: cents}
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// Half returns half the amount, rounded to cents with banker's rounding.
//
// Examples:
//
//	Money{-10000}.Half() -> Money{-5000}
//	Money{-10001}.Half() -> Money{-5000}  (-50.005 rounds to even)
//	Money{-10003}.Half() -> Money{-5002}  (-50.015 rounds to even)
func (m Money) Half() Money {
	half := m.Decimal().Div(decimal.NewFromInt(2)).RoundBank(2)
	return Money{Cents: half.Shift(2).IntPart()}
}

// Neg returns the amount with the sign flipped.
func (m Money) Neg() Money {
	return Money{Cents: -m.Cents}
}

// Abs returns the absolute amount.
func (m Money) Abs() Money {
	if m.Cents < 0 {
		return Money{Cents: -m.Cents}
	}
	return m
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.Cents == 0
}

// String returns the plain decimal form, e.g. "-50.00".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// Display formats the amount with the currency symbol, e.g. "€50.00".
// Unknown currency codes fall back to DefaultCurrency.
func (m Money) Display(currency string) string {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" || money.GetCurrency(code) == nil {
		code = DefaultCurrency
	}
	return money.New(m.Cents, code).Display()
}
