// Package core holds the donation domain: records, input validation,
// amount parsing and category aggregation.
package core

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts user input into a finite amount greater than zero.
//
// A comma is read as the decimal separator (12,5), and exponent notation
// such as 1e2 is accepted since JSON numbers may use it. The value is kept
// as parsed, without rounding. Zero, negative, non-finite and non-numeric
// input is rejected with ErrInvalidAmount.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,345") -> 12.345, nil
//	ParseAmount("1e2")    -> 100, nil
//	ParseAmount("-1")     -> 0, ErrInvalidAmount
func ParseAmount(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return 0, ErrInvalidAmount
	}
	// Only plain decimal and exponent forms; ParseFloat alone would also
	// take "Inf", "NaN" and hex floats.
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == 'e', r == 'E', r == '+', r == '-':
		default:
			return 0, ErrInvalidAmount
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || !ValidAmount(f) {
		return 0, ErrInvalidAmount
	}
	return f, nil
}

// ValidAmount reports whether a decoded amount can be accepted.
func ValidAmount(f float64) bool {
	return f > 0 && !math.IsInf(f, 0) && !math.IsNaN(f)
}

// AddAmounts sums amounts in decimal so that repeated increments of
// short decimal values do not accumulate binary rounding noise.
func AddAmounts(amounts ...float64) float64 {
	sum := decimal.Zero
	for _, a := range amounts {
		sum = sum.Add(decimal.NewFromFloat(a))
	}
	return sum.InexactFloat64()
}
