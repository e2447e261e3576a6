// Package utils provides time, calendar and formatting helpers for optionyield.
package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// FormatEUR formats an amount as euros with two decimals, e.g. "€12.50".
func FormatEUR(amount decimal.Decimal) string {
	if amount.IsNegative() {
		return "-€" + amount.Abs().StringFixed(2)
	}
	return "€" + amount.StringFixed(2)
}

// FormatPct formats a fraction as a percentage with the given decimals, e.g. 0.0909 → "9.09%".
func FormatPct(fraction decimal.Decimal, places int32) string {
	return fraction.Mul(hundred).StringFixed(places) + "%"
}

// NormalizeCode upper-cases and trims an exchange instrument code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// SplitCodes parses a comma separated code list, dropping blanks and duplicates.
func SplitCodes(list string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, part := range strings.Split(list, ",") {
		code := NormalizeCode(part)
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, code)
	}
	return out
}
