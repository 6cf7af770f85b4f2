package services

import (
	"cmp"
	"slices"
	"time"

	"fintrack/internal/core"
)

// Due is the next instalment date of an active EMI.
type Due struct {
	EMI      core.EMIPlan `json:"emi"`
	DueDate  string       `json:"dueDate"`
	DaysLeft int          `json:"daysLeft"`
}

// dueDayIn clamps day to the last day of the month of t, so a due day of 31
// falls on the 30th, or the 28th/29th in February.
func dueDayIn(t time.Time, day int) time.Time {
	last := time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		day = last
	}
	return time.Date(t.Year(), t.Month(), day, 0, 0, 0, 0, time.UTC)
}

// NextDueDate returns the first due date on or after from, and never before
// the EMI start. ok is false when the EMI has ended by then.
func NextDueDate(e core.EMIPlan, from time.Time) (time.Time, bool) {
	from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	if start, ok := e.Start(); ok && start.After(from) {
		from = start
	}

	due := dueDayIn(from, e.DueDay)
	if due.Before(from) {
		first := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
		due = dueDayIn(first.AddDate(0, 1, 0), e.DueDay)
	}

	if end, ok := e.End(); ok && due.After(end) {
		return time.Time{}, false
	}
	return due, true
}

// upcomingDues lists the next due date of every active EMI, soonest first.
func upcomingDues(emis []core.EMIPlan, user string, now time.Time) []Due {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	out := []Due{}
	for _, e := range emis {
		if e.Username != user || !e.IsActive() {
			continue
		}
		due, ok := NextDueDate(e, today)
		if !ok {
			continue
		}
		out = append(out, Due{
			EMI:      e,
			DueDate:  due.Format(core.DateLayout),
			DaysLeft: int(due.Sub(today).Hours() / 24),
		})
	}
	slices.SortStableFunc(out, func(a, b Due) int { return cmp.Compare(a.DueDate, b.DueDate) })
	return out
}
