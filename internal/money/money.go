// Package money holds the ledger's arithmetic on minor-unit amounts.
//
// Amounts are int64 counts of the currency's minor unit (cents for EUR/USD).
// Percentages are decimals so that 15, 12.5 and 7.25 are all exact. Every
// rounding step is half-up to the minor unit, applied exactly once.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrNegativeAmount  = errors.New("negative_amount")
	ErrInvalidPercent  = errors.New("invalid_percent")
	ErrInvalidCurrency = errors.New("invalid_currency")
)

var hundred = decimal.NewFromInt(100)

// Percent returns round_half_up(amount * percent / 100) in minor units.
func Percent(amountMinor int64, percent decimal.Decimal) int64 {
	if amountMinor == 0 || percent.IsZero() {
		return 0
	}
	value := decimal.NewFromInt(amountMinor).Mul(percent).Div(hundred)
	return roundHalfUp(value)
}

// Discount returns the discount for totalMinor at percent, and the remaining total.
func Discount(totalMinor int64, percent decimal.Decimal) (discount int64, net int64) {
	discount = Percent(totalMinor, percent)
	if discount > totalMinor {
		discount = totalMinor
	}
	return discount, totalMinor - discount
}

func Sum(amounts ...int64) int64 {
	var total int64
	for _, amount := range amounts {
		total += amount
	}
	return total
}

// FromMajor converts a major-unit decimal (e.g. 273.90) to minor units, rounding half-up.
func FromMajor(major decimal.Decimal) int64 {
	return roundHalfUp(major.Mul(hundred))
}

// ToMajor converts minor units back to a two-place decimal.
func ToMajor(amountMinor int64) decimal.Decimal {
	return decimal.New(amountMinor, -2)
}

// ParseMajor parses a user-facing amount such as "41.09".
func ParseMajor(value string) (int64, error) {
	parsed, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", value, err)
	}
	if parsed.IsNegative() {
		return 0, ErrNegativeAmount
	}
	return FromMajor(parsed), nil
}

// ValidatePercent accepts values in [0, 100].
func ValidatePercent(percent decimal.Decimal) error {
	if percent.IsNegative() || percent.GreaterThan(hundred) {
		return ErrInvalidPercent
	}
	return nil
}

// FormatMinor renders 4109 EUR as "41.09 EUR".
func FormatMinor(amountMinor int64, currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	formatted := ToMajor(amountMinor).StringFixed(2)
	if currency == "" {
		return formatted
	}
	return formatted + " " + currency
}

// NormalizeCurrency upper-cases an ISO 4217 code.
func NormalizeCurrency(currency string) (string, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if len(currency) != 3 {
		return "", ErrInvalidCurrency
	}
	for _, r := range currency {
		if r < 'A' || r > 'Z' {
			return "", ErrInvalidCurrency
		}
	}
	return currency, nil
}

// roundHalfUp rounds away from zero at .5, matching commercial rounding.
func roundHalfUp(value decimal.Decimal) int64 {
	return value.Round(0).IntPart()
}
