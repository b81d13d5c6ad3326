/*
Package core provides the shared building blocks of the back-office console.

PURPOSE:
  Every console area (payments, billing, earnings, BIR, DPA, LTFRB) talks
  about money, date ranges, identifiers and the same small set of errors.
  Those live here so domain packages agree on them.

KEY CONCEPTS IN THIS FILE (money.go):
  - Money: a decimal amount with an ISO currency (PHP unless stated)
  - Identifiers: prefixed UUIDs (e.g. "rfd-6f1c...")

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal, never float64, for arithmetic
  2. Presentation: Rounded to centavos only at the edge (Round2, Float64)

USAGE:
  fare := core.PHP(245.50)
  net := fare.Sub(fare.Mul(decimal.RequireFromString("0.20")))

SEE ALSO:
  - period.go: Date ranges used by every report
  - errors.go: Sentinel and structured errors
  - audit.go: Audit trail of back-office decisions
*/
package core

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is the settlement currency of the platform.
const DefaultCurrency = "PHP"

// =============================================================================
// MONEY
// =============================================================================

// Money is an amount in a currency.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

// NewMoney builds a Money from a float. Only use for literals and input parsing.
func NewMoney(amount float64, currency string) Money {
	if currency == "" {
		currency = DefaultCurrency
	}
	return Money{Amount: decimal.NewFromFloat(amount), Currency: currency}
}

// PHP builds a peso amount.
func PHP(amount float64) Money { return NewMoney(amount, DefaultCurrency) }

// ZeroMoney returns zero in the given currency.
func ZeroMoney(currency string) Money { return NewMoney(0, currency) }

// ParseMoney parses a decimal string such as "1250.75".
func ParseMoney(s, currency string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: amount %q", ErrInvalidInput, s)
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	return Money{Amount: d, Currency: currency}, nil
}

func (m Money) Add(o Money) Money           { return Money{Amount: m.Amount.Add(o.Amount), Currency: m.currency()} }
func (m Money) Sub(o Money) Money           { return Money{Amount: m.Amount.Sub(o.Amount), Currency: m.currency()} }
func (m Money) Mul(f decimal.Decimal) Money { return Money{Amount: m.Amount.Mul(f), Currency: m.currency()} }
func (m Money) Div(f decimal.Decimal) Money { return Money{Amount: m.Amount.Div(f), Currency: m.currency()} }
func (m Money) Neg() Money                  { return Money{Amount: m.Amount.Neg(), Currency: m.currency()} }
func (m Money) IsZero() bool                { return m.Amount.IsZero() }
func (m Money) IsPositive() bool            { return m.Amount.IsPositive() }
func (m Money) IsNegative() bool            { return m.Amount.IsNegative() }
func (m Money) GreaterThan(o Money) bool    { return m.Amount.GreaterThan(o.Amount) }
func (m Money) LessThan(o Money) bool       { return m.Amount.LessThan(o.Amount) }
func (m Money) Equal(o Money) bool          { return m.Amount.Equal(o.Amount) }
func (m Money) Round2() Money               { return Money{Amount: m.Amount.Round(2), Currency: m.currency()} }
func (m Money) String() string              { return m.currency() + " " + m.Amount.StringFixed(2) }

// CheckAmount rejects input the ledger cannot hold: a currency other than
// DefaultCurrency, or fractions of a centavo.
func CheckAmount(field string, m Money) error {
	if m.currency() != DefaultCurrency {
		return Invalid("%s: unsupported currency %q, only %s is settled", field, m.Currency, DefaultCurrency)
	}
	if !m.Amount.Equal(m.Amount.Round(2)) {
		return Invalid("%s must be in whole centavos, got %s", field, m.Amount)
	}
	return nil
}

// Float64 returns the amount rounded to centavos, for JSON responses.
func (m Money) Float64() float64 {
	f, _ := m.Amount.Round(2).Float64()
	return f
}

func (m Money) currency() string {
	if m.Currency == "" {
		return DefaultCurrency
	}
	return m.Currency
}

// Sum adds amounts; the currency of the first element wins.
func Sum(items ...Money) Money {
	if len(items) == 0 {
		return ZeroMoney(DefaultCurrency)
	}
	total := ZeroMoney(items[0].Currency)
	for _, m := range items {
		total = total.Add(m)
	}
	return total
}

// Percent returns part/whole as a percentage rounded to 2 places, or zero when whole is zero.
func Percent(part, whole decimal.Decimal) float64 {
	if whole.IsZero() {
		return 0
	}
	f, _ := part.Div(whole).Mul(decimal.NewFromInt(100)).Round(2).Float64()
	return f
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

// NewID returns a new identifier such as "txn-0b7e...".
func NewID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
