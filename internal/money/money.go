// Package money holds the currency helpers shared by the ledger engine.
// Amounts are plain float64 rounded to two decimals at every boundary;
// Epsilon is the tolerance used when comparing balances.
package money

import (
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Epsilon is the rounding tolerance for balance comparisons, one centavo.
const Epsilon = 0.01

var brPrinter = message.NewPrinter(language.BrazilianPortuguese)

// Round2 rounds a value to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// EqualWithin reports whether two amounts match within Epsilon.
func EqualWithin(a, b float64) bool {
	return math.Abs(a-b) <= Epsilon
}

// IsSettled reports whether a balance is zero for settlement purposes.
func IsSettled(balance float64) bool {
	return balance <= Epsilon
}

// ParseBRL converts a Brazilian currency string ("R$ 1.234,56") into a
// float64. Malformed input yields 0 and ok=false; callers at the parsing
// boundary are expected to log the miss rather than fail. This lenient
// policy matches the legacy spreadsheet import behaviour.
func ParseBRL(s string) (value float64, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.TrimPrefix(s, "R$")
	s = strings.TrimSpace(s)

	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	// Thousands separator is ".", decimal separator is ",".
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")

	var intPart, fracPart float64
	var fracDigits int
	seenDot := false
	seenDigit := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			seenDigit = true
			if seenDot {
				fracPart = fracPart*10 + float64(r-'0')
				fracDigits++
			} else {
				intPart = intPart*10 + float64(r-'0')
			}
		case r == '.' && !seenDot:
			seenDot = true
		default:
			return 0, false
		}
	}
	if !seenDigit {
		return 0, false
	}
	value = intPart + fracPart/math.Pow10(fracDigits)
	if neg {
		value = -value
	}
	return Round2(value), true
}

// FormatBRL renders an amount using Brazilian conventions, e.g. "R$ 1.234,56".
func FormatBRL(v float64) string {
	return brPrinter.Sprintf("R$ %.2f", v)
}
