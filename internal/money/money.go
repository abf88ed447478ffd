/**
 * @description
 * This package converts between display-precision decimal amounts and integer
 * minor-unit amounts (satoshi at precision 8). It is used at every boundary
 * crossing: API requests, BlockCypher payloads and Rehive uploads.
 *
 * @dependencies
 * - github.com/shopspring/decimal: arbitrary-precision decimal arithmetic.
 *   Binary floating point is never used for amounts.
 */

package money

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned for negative precision or negative amounts.
var ErrInvalidAmount = errors.New("invalid amount")

// ToMinorUnits converts a display-precision decimal amount to its integer
// minor-unit representation by shifting precision decimal places. Fractions
// beyond the precision are rounded half up, so the mapping is deterministic.
func ToMinorUnits(amount decimal.Decimal, precision int) (int64, error) {
	if precision < 0 {
		return 0, ErrInvalidAmount
	}
	if amount.IsNegative() {
		return 0, ErrInvalidAmount
	}
	shifted := amount.Shift(int32(precision)).Round(0)
	if !shifted.IsInteger() || !shifted.BigInt().IsInt64() {
		return 0, ErrInvalidAmount
	}
	return shifted.IntPart(), nil
}

// ParseToMinorUnits parses a decimal string and converts it to minor units.
func ParseToMinorUnits(amount string, precision int) (int64, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return ToMinorUnits(d, precision)
}

// FromMinorUnits converts an integer minor-unit amount back to its
// display-precision decimal. The division is exact.
func FromMinorUnits(v int64, precision int) decimal.Decimal {
	return decimal.New(v, -int32(precision))
}
