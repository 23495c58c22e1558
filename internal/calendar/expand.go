package calendar

import (
	"fmt"
	"strings"
)

// Granularity selects how an anchor date is expanded.
type Granularity string

const (
	Day   Granularity = "day"
	Week  Granularity = "week"
	Month Granularity = "month"
)

// ParseGranularity accepts day, week or month, case-insensitively.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case Day, Week, Month:
		return g, nil
	default:
		return "", fmt.Errorf("unknown granularity %q", s)
	}
}

// Normalize moves anchor to the first day of the period g covers.
func Normalize(anchor Date, g Granularity) Date {
	switch g {
	case Week:
		return anchor.StartOfWeek()
	case Month:
		return anchor.StartOfMonth()
	default:
		return anchor
	}
}

// Expand returns the chronologically ordered days covered by anchor at
// granularity g. Week ranges start on Monday, month ranges on the 1st.
func Expand(anchor Date, g Granularity) []Date {
	if anchor.IsZero() {
		return []Date{}
	}

	start := Normalize(anchor, g)
	var n int
	switch g {
	case Day:
		n = 1
	case Week:
		n = 7
	case Month:
		n = DaysIn(start.Year, start.Month)
	default:
		return []Date{}
	}

	days := make([]Date, 0, n)
	for i := 0; i < n; i++ {
		days = append(days, start.AddDays(i))
	}
	return days
}

// ExpandString is Expand for a raw anchor. An unparseable anchor yields an
// empty range, which callers treat as "no data".
func ExpandString(anchor string, g Granularity) []Date {
	d, err := Parse(anchor)
	if err != nil {
		return []Date{}
	}
	return Expand(d, g)
}
