// Package money provides fixed-point arithmetic for shop prices.
// Amounts are int64 cents so cart totals are exact folds.
package money

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// USDScale is the number of cents in a dollar.
const USDScale int64 = 100

// USD represents US dollars in cents (2 decimal places).
type USD int64

// NewUSD creates USD from a dollar amount, rounding to the nearest cent.
func NewUSD(dollars float64) USD {
	return USD(math.Round(dollars * float64(USDScale)))
}

// NewUSDFromCents creates USD from cents.
func NewUSDFromCents(cents int64) USD {
	return USD(cents)
}

// Zero returns zero USD.
func Zero() USD {
	return USD(0)
}

// Add returns a + b.
func (a USD) Add(b USD) USD {
	return a + b
}

// Sub returns a - b.
func (a USD) Sub(b USD) USD {
	return a - b
}

// Mul multiplies by an integer factor (typically a quantity).
func (a USD) Mul(factor int) USD {
	return USD(int64(a) * int64(factor))
}

// IsZero returns true if == 0.
func (a USD) IsZero() bool {
	return a == 0
}

// IsNegative returns true if < 0.
func (a USD) IsNegative() bool {
	return a < 0
}

// Float64 converts to float64 for display and the backend wire format.
func (a USD) Float64() float64 {
	return float64(a) / float64(USDScale)
}

// Cents returns the raw cent value.
func (a USD) Cents() int64 {
	return int64(a)
}

// String returns formatted string like "$123.45" or "-$45.00".
func (a USD) String() string {
	if a < 0 {
		return fmt.Sprintf("-$%.2f", float64(-a)/float64(USDScale))
	}
	return fmt.Sprintf("$%.2f", float64(a)/float64(USDScale))
}

// MarshalJSON encodes the amount as a decimal number of dollars, the shape
// the backend uses for prices.
func (a USD) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(a.Float64(), 'f', 2, 64)), nil
}

// UnmarshalJSON accepts a decimal number or a numeric string of dollars.
func (a *USD) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*a = NewUSD(f)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("money: invalid amount %s", data)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("money: invalid amount %q: %w", s, err)
	}
	*a = NewUSD(f)
	return nil
}

// Sum adds all amounts.
func Sum(amounts ...USD) USD {
	var total USD
	for _, a := range amounts {
		total += a
	}
	return total
}
