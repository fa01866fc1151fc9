// Package money holds the fixed-point amount type used by the payment ledger.
//
// Amounts are integers in minor currency units (centavos). Arithmetic never
// touches floating point; decimal is only used at the JSON and display
// boundary.
package money

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// MinorUnits is the number of fractional digits of the ledger currency.
const MinorUnits = 2

// ErrInvalidAmount is returned for negative or malformed amounts.
var ErrInvalidAmount = errors.New("invalid amount")

// Amount is a money value in minor units.
type Amount int64

// Zero is the zero amount.
const Zero Amount = 0

// Add returns a + b.
func Add(a, b Amount) Amount {
	return a + b
}

// SubClamped returns max(0, a-b).
func SubClamped(a, b Amount) Amount {
	if b >= a {
		return Zero
	}
	return a - b
}

// Min returns the smaller of a and b.
func Min(a, b Amount) Amount {
	if a < b {
		return a
	}
	return b
}

// Compare returns -1, 0 or +1.
func Compare(a, b Amount) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (a Amount) IsNegative() bool { return a < 0 }
func (a Amount) IsZero() bool     { return a == 0 }

// Validate rejects negative amounts.
func (a Amount) Validate() error {
	if a.IsNegative() {
		return fmt.Errorf("%w: %s is negative", ErrInvalidAmount, a)
	}
	return nil
}

// Decimal returns the amount in major units.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -MinorUnits)
}

// String renders the amount in major units with two decimals, e.g. "1250.00".
func (a Amount) String() string {
	return a.Decimal().StringFixed(MinorUnits)
}

// FromDecimal converts a major-unit decimal into an Amount. Values with more
// precision than MinorUnits are rejected rather than rounded.
func FromDecimal(d decimal.Decimal) (Amount, error) {
	minor := d.Shift(MinorUnits)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidAmount, d.String(), MinorUnits)
	}
	if !minor.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: %s is out of range", ErrInvalidAmount, d.String())
	}
	return Amount(minor.IntPart()), nil
}

// Parse reads a major-unit string such as "1500" or "1500.25".
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return FromDecimal(d)
}

// MustParse is Parse for constants in tests and seed data.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// MarshalJSON encodes the amount as a major-unit decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts a major-unit value either as a JSON string or number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
		}
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
