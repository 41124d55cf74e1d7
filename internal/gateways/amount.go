package gateways

import (
	"fmt"
	"strconv"
	"strings"
)

// MinorToDecimal renders minor units as a "123.45" decimal string, the format
// most gateway APIs expect. The unit is always explicit at call sites; nothing
// here guesses based on magnitude.
func MinorToDecimal(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
}

// DecimalToMinor parses a gateway decimal amount ("123.45", "123", "123.4")
// into minor units. More than two fraction digits is rejected: no gateway in
// use quotes sub-cent amounts, and silent truncation hides real mismatches.
func DecimalToMinor(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}

	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("amount %q has more than two fraction digits", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}

	minor := w*100 + f
	if neg {
		minor = -minor
	}
	return minor, nil
}
