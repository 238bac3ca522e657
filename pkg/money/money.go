// Package money converts between major-unit decimals at the API boundary and
// the int64 minor units stored in the database.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const Scale = 2

var hundred = decimal.NewFromInt(100)

// Amount is a monetary value in minor units (cents). It marshals to JSON as a
// major-unit number, e.g. Amount(1050) <-> 10.50.
type Amount int64

func FromDecimal(d decimal.Decimal) Amount {
	return Amount(d.Shift(Scale).Round(0).IntPart())
}

func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return FromDecimal(d), nil
}

func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -Scale)
}

func (a Amount) String() string {
	return a.Decimal().StringFixed(Scale)
}

// Percent returns pct percent of a, rounded half away from zero to the nearest
// minor unit.
func (a Amount) Percent(pct decimal.Decimal) Amount {
	v := decimal.NewFromInt(int64(a)).Mul(pct).Div(hundred).Round(0)
	return Amount(v.IntPart())
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts both JSON numbers and numeric strings.
func (a *Amount) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	*a = FromDecimal(d)
	return nil
}
