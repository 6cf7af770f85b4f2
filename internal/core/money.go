package core

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxAmountCents bounds any single amount (salary, expense or EMI) so that
// sums over a ledger stay well inside int64.
const MaxAmountCents = 100_000_000_000_00

var maxAmount = decimal.New(MaxAmountCents, -2)

// ParseMoney reads a decimal amount such as "1250.50". A lone comma is taken
// as the decimal separator ("12,34"). Amounts whose magnitude exceeds
// MaxAmountCents are rejected with ErrInvalidAmount. The sign is kept.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("parse amount %q: %w", s, ErrInvalidAmount)
	}
	return MoneyFromDecimalChecked(d)
}

// MoneyFromDecimalChecked is MoneyFromDecimal with the MaxAmountCents bound.
func MoneyFromDecimalChecked(d decimal.Decimal) (Money, error) {
	if d.Abs().Round(2).GreaterThan(maxAmount) {
		return Money{}, fmt.Errorf("amount %s out of range: %w", d, ErrInvalidAmount)
	}
	return MoneyFromDecimal(d), nil
}

// MoneyFromDecimal rounds d half away from zero to whole cents.
func MoneyFromDecimal(d decimal.Decimal) Money {
	return Money{Cents: d.Shift(2).Round(0).IntPart()}
}

// Cents is a shorthand constructor.
func Cents(c int64) Money { return Money{Cents: c} }

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }

func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }

func (m Money) IsZero() bool { return m.Cents == 0 }

// Decimal returns the amount in currency units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String renders the amount without trailing zeros, e.g. "250" or "12.5".
func (m Money) String() string {
	return m.Decimal().String()
}

// MarshalJSON encodes the amount as a bare JSON number in currency units.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal().String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (m *Money) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		m.Cents = 0
		return nil
	}
	v, err := ParseMoney(strings.Trim(string(b), `"`))
	if err != nil {
		return fmt.Errorf("decode money: %w", err)
	}
	*m = v
	return nil
}
