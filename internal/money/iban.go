package money

import (
	"math/big"
	"strings"
)

// NormalizeIBAN strips spaces and upper-cases an account identifier.
func NormalizeIBAN(s string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
}

// ValidIBAN reports whether s is a structurally valid IBAN: two letter country
// code, two check digits, alphanumeric BBAN, and a mod-97 remainder of 1.
func ValidIBAN(s string) bool {
	iban := NormalizeIBAN(s)
	if len(iban) < 15 || len(iban) > 34 {
		return false
	}

	for i, r := range iban {
		switch {
		case i < 2 && (r < 'A' || r > 'Z'):
			return false
		case i >= 2 && i < 4 && (r < '0' || r > '9'):
			return false
		case (r < 'A' || r > 'Z') && (r < '0' || r > '9'):
			return false
		}
	}

	rearranged := iban[4:] + iban[:4]

	var digits strings.Builder

	for _, r := range rearranged {
		if r >= 'A' && r <= 'Z' {
			digits.WriteString(big.NewInt(int64(r-'A'+10)).String())
			continue
		}

		digits.WriteRune(r)
	}

	n, ok := new(big.Int).SetString(digits.String(), 10)
	if !ok {
		return false
	}

	return new(big.Int).Mod(n, big.NewInt(97)).Int64() == 1
}

// Country returns the ISO 3166 country prefix of an IBAN.
func Country(iban string) string {
	iban = NormalizeIBAN(iban)
	if len(iban) < 2 {
		return ""
	}

	return iban[:2]
}
