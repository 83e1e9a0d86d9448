// Package normalize turns raw statement lines into canonical text.
//
// Statement PDFs render decorative icons through Private Use Area glyphs and
// pad lines with symbol noise; extraction carries all of that through. Every
// line entering the parser goes through Line exactly once.
package normalize

import (
	"regexp"
	"strings"
)

// leadSymbols is the fixed set of leading symbol noise stripped from lines
const leadSymbols = ">@§$Z)_•*®«» "

var multiSpace = regexp.MustCompile(`\s{2,}`)

// Line converts a raw extracted line into its canonical form. It removes
// Unicode Private Use Area glyphs, trims the leading-symbol set, replaces
// underscores with spaces and collapses whitespace runs. The result may be
// empty; callers skip empty lines.
func Line(raw string) string {
	if raw == "" {
		return ""
	}
	s := StripPUA(raw)
	s = strings.TrimLeft(s, leadSymbols)
	s = strings.ReplaceAll(s, "_", " ")
	s = multiSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// StripPUA removes Private Use Area code points (U+E000 through U+F8FF)
func StripPUA(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 0xE000 && r <= 0xF8FF {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
