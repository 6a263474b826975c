// Package money holds the fixed-point helpers shared by order and market
// amounts. Every amount is a decimal rounded to the smallest currency unit.
package money

import (
	"fmt"
	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits of the currency unit.
const Places = 2

var (
	Zero = decimal.Zero
	One  = decimal.NewFromInt(1)
)

// Round rounds half away from zero to cents, which is half-up for the
// non-negative amounts the engine deals with.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Mul returns price × qty rounded to cents.
func Mul(price decimal.Decimal, qty int) decimal.Decimal {
	return Round(price.Mul(decimal.NewFromInt(int64(qty))))
}

func Sum(ds ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, d := range ds {
		total = total.Add(d)
	}
	return total
}

func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d, nil
}

// MustParse is for constants and tests.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

func IsPositive(d decimal.Decimal) bool    { return d.Sign() > 0 }
func IsNonNegative(d decimal.Decimal) bool { return d.Sign() >= 0 }

// HasCents reports whether d is representable in whole cents.
func HasCents(d decimal.Decimal) bool {
	return d.Equal(Round(d))
}

func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}
