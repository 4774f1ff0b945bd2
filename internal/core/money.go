// Package core provides money parsing and handling utilities.
//
// Money wraps a decimal value fixed at two places. Balances may be negative,
// transaction and transfer amounts never are.
package core

import (
	"bytes"
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Money struct {
	d decimal.Decimal
}

// Zero is the additive identity.
var Zero = Money{}

// MaxAmount is the largest amount a transaction or transfer may carry,
// the range of a NUMERIC(14,2) column.
var MaxAmount = MustMoney("999999999999.99")

func NewMoney(d decimal.Decimal) Money {
	return Money{d: d.Round(2)}
}

// MoneyFromCents builds a Money from an amount in minor units.
func MoneyFromCents(cents int64) Money {
	return Money{d: decimal.New(cents, -2)}
}

// MustMoney parses a plain decimal literal. It is meant for tests and constants.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return NewMoney(d)
}

func (m Money) Decimal() decimal.Decimal { return m.d }

// Cents returns the amount in minor units. Amounts outside the int64
// range fail with ErrAmountOutOfRange.
func (m Money) Cents() (int64, error) {
	c := m.d.Shift(2).Round(0).BigInt()
	if !c.IsInt64() {
		return 0, fmt.Errorf("%s: %w", m, ErrAmountOutOfRange)
	}
	return c.Int64(), nil
}

// ExceedsMax reports whether |m| is above MaxAmount.
func (m Money) ExceedsMax() bool { return m.d.Abs().GreaterThan(MaxAmount.d) }

func (m Money) Add(o Money) Money { return Money{d: m.d.Add(o.d)} }
func (m Money) Sub(o Money) Money { return Money{d: m.d.Sub(o.d)} }
func (m Money) Neg() Money { return Money{d: m.d.Neg()} }

func (m Money) Cmp(o Money) int { return m.d.Cmp(o.d) }
func (m Money) Equal(o Money) bool { return m.d.Equal(o.d) }
func (m Money) LessThan(o Money) bool { return m.d.LessThan(o.d) }
func (m Money) IsZero() bool { return m.d.IsZero() }
func (m Money) IsPositive() bool { return m.d.IsPositive() }
func (m Money) IsNegative() bool { return m.d.IsNegative() }
func (m Money) Abs() Money { return Money{d: m.d.Abs()} }
func (m Money) String() string { return m.d.StringFixed(2) }
func (m Money) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// MarshalJSON renders the amount as a JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.d.StringFixed(2)), nil
}

// UnmarshalJSON accepts numbers and strings ("12.34", "12,34").
func (m *Money) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*m = Zero
		return nil
	}
	s := strings.Trim(string(b), `"`)
	d, err := parseDecimal(s)
	if err != nil {
		return &ValidationError{Field: "amount", Err: ErrInvalidAmount}
	}
	*m = NewMoney(d)
	return nil
}

// Value stores the amount as a decimal string.
func (m Money) Value() (driver.Value, error) {
	return m.d.StringFixed(2), nil
}

// Scan reads decimal columns. Integer columns are read as whole units; cent
// encoded columns must go through MoneyFromCents instead.
func (m *Money) Scan(src any) error {
	var d decimal.Decimal
	if err := d.Scan(src); err != nil {
		return fmt.Errorf("scan money: %w", err)
	}
	*m = NewMoney(d)
	return nil
}

// ParseAmount converts user input to a positive Money with half-up rounding
// on the third decimal place.
//
// It accepts dot (12.34) and comma (12,34) decimal separators, thousands
// grouping when both appear (1.234,56 or 1,234.56) and a leading currency
// symbol (R$ 10,00). Zero and negative values are rejected.
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	for _, sym := range []string{"R$", "US$", "$", "€"} {
		s = strings.TrimSpace(strings.TrimPrefix(s, sym))
	}
	if s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return Zero, ErrInvalidAmount
	}
	d, err := parseDecimal(s)
	if err != nil {
		return Zero, ErrInvalidAmount
	}
	m := NewMoney(d)
	if !m.IsPositive() {
		return Zero, ErrInvalidAmount
	}
	return m, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	dot := strings.LastIndex(s, ".")
	comma := strings.LastIndex(s, ",")
	switch {
	case dot >= 0 && comma >= 0:
		// the right-most separator is the decimal one
		if comma > dot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case comma >= 0:
		if strings.Count(s, ",") > 1 {
			return decimal.Zero, ErrInvalidAmount
		}
		s = strings.Replace(s, ",", ".", 1)
	case strings.Count(s, ".") > 1:
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	return decimal.NewFromString(s)
}

var currencySymbols = map[string]string{
	"BRL": "R$",
	"USD": "US$",
	"EUR": "€",
	"GBP": "£",
}

// Format renders the amount the way pt-BR users read it: "R$ 1.234,56".
func (m Money) Format(currency string) string {
	sym, ok := currencySymbols[strings.ToUpper(currency)]
	if !ok {
		sym = strings.ToUpper(currency)
	}
	raw := m.d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(raw, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	out := sym + " " + b.String() + "," + frac
	if m.d.IsNegative() {
		return "-" + out
	}
	return out
}

// Sum adds a list of amounts.
func Sum(ms ...Money) Money {
	total := Zero
	for _, m := range ms {
		total = total.Add(m)
	}
	return total
}
