// Package types provides common types used across famledger.
package types

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Money is an amount in cents. Balances and transaction amounts are always
// whole cents so that re-summing transactions reproduces a stored balance
// exactly. Fractional results (percentage shares, interest) go through
// decimal and are rounded to the cent once, at the point they are created.
type Money struct {
	Amount int64 `json:"amount"` // cents
}

// Cents creates a Money value from a number of cents.
func Cents(c int64) Money { return Money{Amount: c} }

// Zero returns a zero Money value.
func Zero() Money { return Money{} }

// FromDecimal converts a major-unit decimal (12.345) to Money, rounding half
// away from zero to the nearest cent.
func FromDecimal(d decimal.Decimal) Money {
	return Money{Amount: d.Round(2).Shift(2).IntPart()}
}

// ParseMoney parses a major-unit string such as "12.50" or "-3".
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Money{}, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return FromDecimal(d), nil
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Amount, -2)
}

// Percent returns pct percent of m, rounded to the cent.
func (m Money) Percent(pct decimal.Decimal) Money {
	return FromDecimal(m.Decimal().Mul(pct).Div(hundred))
}

// Add adds two Money values.
func (m Money) Add(other Money) Money {
	return Money{Amount: m.Amount + other.Amount}
}

// Subtract subtracts another Money value.
func (m Money) Subtract(other Money) Money {
	return Money{Amount: m.Amount - other.Amount}
}

// Negate returns the negative of the Money value.
func (m Money) Negate() Money {
	return Money{Amount: -m.Amount}
}

// Abs returns the absolute value.
func (m Money) Abs() Money {
	if m.Amount < 0 {
		return Money{Amount: -m.Amount}
	}
	return m
}

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool { return m.Amount == 0 }

// IsPositive returns true if the amount is greater than zero.
func (m Money) IsPositive() bool { return m.Amount > 0 }

// IsNegative returns true if the amount is less than zero.
func (m Money) IsNegative() bool { return m.Amount < 0 }

// Equal returns true if both values hold the same number of cents.
func (m Money) Equal(other Money) bool { return m.Amount == other.Amount }

// LessThan returns true if m is less than other.
func (m Money) LessThan(other Money) bool { return m.Amount < other.Amount }

// GreaterThan returns true if m is greater than other.
func (m Money) GreaterThan(other Money) bool { return m.Amount > other.Amount }

// FormatMajor returns the amount in major units without a symbol: "49.00".
func (m Money) FormatMajor() string {
	abs := m.Amount
	sign := ""
	if abs < 0 {
		abs = -abs
		sign = "-"
	}
	return fmt.Sprintf("%s%d.%02d", sign, abs/100, abs%100)
}

// String returns a display string such as "$49.00" or "-$3.10".
func (m Money) String() string {
	if m.Amount < 0 {
		return "-$" + m.Abs().FormatMajor()
	}
	return "$" + m.FormatMajor()
}

// MarshalJSON implements json.Marshaler.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount  int64  `json:"amount"`
		Display string `json:"display"`
	}{
		Amount:  m.Amount,
		Display: m.String(),
	})
}

// UnmarshalJSON accepts the object form written by MarshalJSON, a bare
// number of cents, or a quoted major-unit string ("12.50").
func (m *Money) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case strings.HasPrefix(trimmed, "{"):
		var obj struct {
			Amount int64 `json:"amount"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		m.Amount = obj.Amount
		return nil
	case strings.HasPrefix(trimmed, `"`):
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseMoney(s)
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	default:
		return json.Unmarshal(data, &m.Amount)
	}
}

// Sum calculates the sum of multiple Money values.
func Sum(values ...Money) Money {
	var total Money
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
