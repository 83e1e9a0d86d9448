// Package money parses and formats Brazilian-convention monetary strings.
//
// Statement amounts use a dot thousands separator and a decimal comma
// ("1.234,56", "56,90"). All values are fixed-point decimals at 2-digit
// scale, rounded half-up. Parse failures are explicit: callers always get a
// distinguishable error instead of a silent zero.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseError reports an amount that could not be parsed. Position is the
// 0-based statement line index when known, -1 otherwise.
type ParseError struct {
	Input    string
	Position int
}

func (e *ParseError) Error() string {
	if e.Position >= 0 {
		return fmt.Sprintf("unparseable amount %q at line %d", e.Input, e.Position)
	}
	return fmt.Sprintf("unparseable amount %q", e.Input)
}

// Parse converts a Brazilian-convention amount string into a decimal rounded
// half-up to 2 places. On failure it returns decimal.Zero and a *ParseError.
func Parse(s string) (decimal.Decimal, error) {
	cleaned := sanitize(s)
	if cleaned == "" || cleaned == "-" {
		return decimal.Zero, &ParseError{Input: s, Position: -1}
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, &ParseError{Input: s, Position: -1}
	}
	return round2(d), nil
}

// ParseRate converts a 4-decimal conversion rate ("5,2340") into a decimal
func ParseRate(s string) (decimal.Decimal, error) {
	cleaned := sanitize(s)
	if cleaned == "" {
		return decimal.Zero, &ParseError{Input: s, Position: -1}
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, &ParseError{Input: s, Position: -1}
	}
	return d.Round(4), nil
}

// Format renders a decimal back into the Brazilian convention, with a dot
// thousands separator and decimal comma. Parse(Format(d)) == d for any value
// at 2-digit scale.
func Format(d decimal.Decimal) string {
	return FormatPlaces(d, 2)
}

// FormatPlaces is Format at an explicit scale, for 4-decimal conversion rates
func FormatPlaces(d decimal.Decimal, places int32) string {
	fixed := d.StringFixed(places)

	neg := strings.HasPrefix(fixed, "-")
	if neg {
		fixed = fixed[1:]
	}
	intPart, fracPart, _ := strings.Cut(fixed, ".")

	var groups []string
	for len(intPart) > 3 {
		groups = append([]string{intPart[len(intPart)-3:]}, groups...)
		intPart = intPart[:len(intPart)-3]
	}
	groups = append([]string{intPart}, groups...)

	out := strings.Join(groups, ".")
	if fracPart != "" {
		out += "," + fracPart
	}
	if neg {
		out = "-" + out
	}
	return out
}

// sanitize strips everything except digits, comma and minus, then converts
// the decimal comma to a dot
func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == ',', r == '-':
			b.WriteRune(r)
		}
	}
	return strings.ReplaceAll(b.String(), ",", ".")
}

// round2 rounds to 2 decimal places with ties going away from zero
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
