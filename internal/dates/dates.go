// Package dates normalizes statement dates.
//
// Posting lines carry DD/MM dates, sometimes DD/MM/YYYY. The missing year
// (and, for bare day values, the month) comes from the statement's reference
// period, inferred once per statement and immutable afterwards.
package dates

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// RefPeriod is the billing period a statement belongs to, used to complete
// dates that omit the year
type RefPeriod struct {
	Year  int
	Month int
}

var (
	reDate       = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})(?:/(\d{4}))?`)
	rePeriodLine = regexp.MustCompile(`(?i)fatura\s+de\s+\w+/(\d{4})|vencimento.*?\d{1,2}/(\d{1,2})/(\d{4})`)
	reFileStamp  = regexp.MustCompile(`(20\d{2})[-_]?(\d{2})`)
)

// ParseError reports a date that could not be normalized. Position is the
// 0-based statement line index when known, -1 otherwise.
type ParseError struct {
	Input    string
	Position int
}

func (e *ParseError) Error() string {
	if e.Position >= 0 {
		return fmt.Sprintf("invalid date %q at line %d", e.Input, e.Position)
	}
	return fmt.Sprintf("invalid date %q", e.Input)
}

// Parse normalizes a D/M or D/M/YYYY date string to ISO YYYY-MM-DD. A missing
// year falls back to the reference period. Calendar-invalid combinations
// (month 13, day 32) yield a *ParseError.
func Parse(s string, ref RefPeriod) (string, error) {
	m := reDate.FindStringSubmatch(s)
	if m == nil {
		return "", &ParseError{Input: s, Position: -1}
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year := ref.Year
	if m[3] != "" {
		year, _ = strconv.Atoi(m[3])
	}
	if month == 0 {
		month = ref.Month
	}

	if month < 1 || month > 12 || day < 1 {
		return "", &ParseError{Input: s, Position: -1}
	}
	// Let time.Date validate the day against the month
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month || t.Year() != year {
		return "", &ParseError{Input: s, Position: -1}
	}
	return t.Format("2006-01-02"), nil
}

// InferRefPeriod determines the reference period for a statement. It prefers
// an explicit due-date marker in the statement text, then a YYYY-MM token
// embedded in the filename, then the current system date. A year-only period
// marker ("fatura de abril/2025") pins the year while the month search
// continues.
func InferRefPeriod(lines []string, filename string, now time.Time) RefPeriod {
	yearOnly := 0
	for _, line := range lines {
		m := rePeriodLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if m[3] != "" {
			year, _ := strconv.Atoi(m[3])
			month, _ := strconv.Atoi(m[2])
			if month >= 1 && month <= 12 {
				return RefPeriod{Year: year, Month: month}
			}
		}
		if m[1] != "" && yearOnly == 0 {
			yearOnly, _ = strconv.Atoi(m[1])
		}
	}
	if m := reFileStamp.FindStringSubmatch(filename); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if month >= 1 && month <= 12 {
			if yearOnly != 0 {
				year = yearOnly
			}
			return RefPeriod{Year: year, Month: month}
		}
	}
	if yearOnly != 0 {
		return RefPeriod{Year: yearOnly, Month: int(now.Month())}
	}
	return RefPeriod{Year: now.Year(), Month: int(now.Month())}
}
