// Package money holds the fixed-point helpers used for prices and totals.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

const Scale int32 = 2

// Round returns amount rounded half-up to two decimal places.
func Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(Scale)
}

// LineTotal is unit price times quantity, rounded to two decimal places.
func LineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return Round(unitPrice.Mul(decimal.NewFromInt(int64(quantity))))
}

// Format renders an amount for humans, e.g. "KES 1,500.00".
func Format(amount decimal.Decimal, currency string) string {
	s := Round(amount).StringFixed(Scale)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String() + "." + frac
	if neg {
		out = "-" + out
	}
	if currency == "" {
		return out
	}
	return currency + " " + out
}
