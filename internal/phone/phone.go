// Package phone holds the number-normalization and speech-formatting helpers
// shared by every voice handler. All functions are pure.
package phone

import (
	"strings"

	"github.com/shopspring/decimal"
)

// SanitizeDigits strips everything except decimal digits.
func SanitizeDigits(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeUK rewrites a UK local-form number into international dialing form.
// "07911 000111" becomes "+447911000111", "020 7946 0018" becomes "+442079460018".
// Numbers already in +44 or other international form are passed through cleaned.
func NormalizeUK(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	hadPlus := strings.HasPrefix(value, "+")
	digits := SanitizeDigits(value)
	if digits == "" {
		return ""
	}
	switch {
	case hadPlus:
		return "+" + digits
	case strings.HasPrefix(digits, "44"):
		return "+" + digits
	case strings.HasPrefix(digits, "0"):
		return "+44" + digits[1:]
	default:
		return "+" + digits
	}
}

// LocalUK renders a normalized number back into the 0-prefixed local form donors
// recognise when it is read aloud or sent by SMS.
func LocalUK(value string) string {
	digits := SanitizeDigits(value)
	if strings.HasPrefix(digits, "44") && len(digits) > 2 {
		return "0" + digits[2:]
	}
	return digits
}

// SpeakDigits spaces out the digits of a number so text-to-speech reads them one
// at a time instead of as a single large quantity.
func SpeakDigits(value string) string {
	digits := SanitizeDigits(value)
	if digits == "" {
		return ""
	}
	parts := make([]string, 0, len(digits))
	for _, r := range digits {
		parts = append(parts, string(r))
	}
	return strings.Join(parts, ", ")
}

// SpeakMoney renders an amount for text-to-speech, e.g. "120 pounds and 50 pence".
func SpeakMoney(amount decimal.Decimal) string {
	pounds := amount.Truncate(0)
	pence := amount.Sub(pounds).Mul(decimal.NewFromInt(100)).Round(0)
	if pence.IsZero() {
		return pounds.StringFixed(0) + " pounds"
	}
	return pounds.StringFixed(0) + " pounds and " + pence.StringFixed(0) + " pence"
}

// FirstName returns the leading word of a display name for the connecting line.
func FirstName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if i := strings.IndexAny(name, " \t"); i > 0 {
		return name[:i]
	}
	return name
}
