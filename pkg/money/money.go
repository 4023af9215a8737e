package money

import (
	"github.com/shopspring/decimal"
)

// Trunc2 truncates toward zero at 2 decimal places.
// 52.2875 -> 52.28, -1.019 -> -1.01. Used for deposit conversion so the
// house never credits a fraction it did not receive.
func Trunc2(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(2)
}

// Round2 rounds half away from zero at 2 decimal places.
// 37.2262 -> 37.23. Used for withdrawal and disbursement figures.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Format renders a settlement amount with exactly two decimal places.
func Format(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// IsPositive reports whether d is strictly greater than zero.
func IsPositive(d decimal.Decimal) bool {
	return d.Sign() > 0
}

// Zero is the decimal zero value, exported for aggregate seeds.
var Zero = decimal.Zero
