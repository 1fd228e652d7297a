package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

var (
	ErrInvalidCurrency = errors.New("invalid currency")
	ErrInvalidAmount   = errors.New("invalid amount")
)

// ParseCurrency normalizes an ISO 4217 code ("eur" -> "EUR") and rejects
// codes x/text does not know about.
func ParseCurrency(code string) (string, error) {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}

	return unit.String(), nil
}

// ParseAmount parses a plain decimal string ("1000", "1000.50"). Negative
// amounts and amounts finer than a cent are rejected.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, s)
	}

	if !Cents(d) {
		return decimal.Zero, fmt.Errorf("%w: %q has more than two decimal places", ErrInvalidAmount, s)
	}

	return d, nil
}

// Cents reports whether d is a whole number of cents.
func Cents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}

// Format renders an amount with its currency symbol, e.g. "€ 1000.00".
func Format(amount decimal.Decimal, code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return amount.StringFixed(2) + " " + code
	}

	return fmt.Sprintf("%v %s", currency.Symbol(unit), amount.StringFixed(2))
}
