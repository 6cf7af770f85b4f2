package core

import (
	"strings"
	"time"
)

// Period is a calendar month key in YYYY-MM form. The fixed-width, zero-padded
// layout makes lexicographic order equal chronological order.
type Period string

// InvalidPeriod is returned when an input cannot be turned into a period.
const InvalidPeriod Period = ""

const (
	periodLayout = "2006-01"
	DateLayout   = "2006-01-02"
)

// dateLayouts are tried in order by ParseDate.
var dateLayouts = []string{
	DateLayout,
	"2006/01/02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	if t.IsZero() {
		return InvalidPeriod
	}
	return Period(t.Format(periodLayout))
}

// ParsePeriod converts a YYYY-MM key or any date accepted by ParseDate into a
// period. It never panics; unparseable input yields InvalidPeriod.
func ParsePeriod(s string) Period {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(periodLayout, s); err == nil {
		return PeriodOf(t)
	}
	if t, ok := ParseDate(s); ok {
		return PeriodOf(t)
	}
	return InvalidPeriod
}

// ParseDate parses a calendar date in one of the supported layouts. Only the
// calendar day is kept; the result is midnight UTC.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// CurrentPeriod is the period of the system clock.
func CurrentPeriod() Period {
	return CurrentPeriodAt(time.Now)
}

// CurrentPeriodAt reads the period from the supplied clock.
func CurrentPeriodAt(now func() time.Time) Period {
	return PeriodOf(now())
}

func (p Period) String() string { return string(p) }

// Valid reports whether p is a well-formed YYYY-MM key.
func (p Period) Valid() bool {
	_, err := time.Parse(periodLayout, string(p))
	return err == nil
}

// Start returns the first day of the month, UTC.
func (p Period) Start() (time.Time, bool) {
	t, err := time.Parse(periodLayout, string(p))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Next returns the following month, or InvalidPeriod past 9999-12.
func (p Period) Next() Period { return p.shift(1) }

// Prev returns the preceding month, or InvalidPeriod before 0000-01.
func (p Period) Prev() Period { return p.shift(-1) }

func (p Period) shift(months int) Period {
	t, ok := p.Start()
	if !ok {
		return InvalidPeriod
	}
	next := PeriodOf(t.AddDate(0, months, 0))
	if !next.Valid() {
		return InvalidPeriod
	}
	return next
}

// Year returns the calendar year of p, or 0 when invalid.
func (p Period) Year() int {
	t, ok := p.Start()
	if !ok {
		return 0
	}
	return t.Year()
}

// PeriodRange lists every period from..to inclusive in ascending order. It
// returns nil when either bound is invalid or from is after to.
func PeriodRange(from, to Period) []Period {
	if !from.Valid() || !to.Valid() || from > to {
		return nil
	}
	var out []Period
	for p := from; ; {
		out = append(out, p)
		next := p.Next()
		if p == to || !next.Valid() || next <= p {
			return out
		}
		p = next
	}
}
