// Package engine derives month snapshots, rolling series, range reports and
// category breakdowns from a record snapshot.
//
// Every function here is a pure read over core.State: same state in, same
// result out, nothing is mutated.
package engine

import (
	"cmp"
	"slices"
	"time"

	"fintrack/internal/core"
)

// DefaultMonthsBack is the length of a rolling series when none is given.
const DefaultMonthsBack = 12

// Snapshot is the view model of one month.
type Snapshot struct {
	Period   core.Period       `json:"period"`
	Salary   core.Money        `json:"salary"`
	Expenses core.Money        `json:"expenses"`
	EMITotal core.Money        `json:"emiTotal"`
	Savings  core.Money        `json:"savings"`
	Score    int               `json:"score"`
	Status   core.HealthStatus `json:"status"`
	Tip      string            `json:"tip"`
}

// CategoryAmount is the amount spent in one category.
type CategoryAmount struct {
	Category core.Category `json:"category"`
	Amount   core.Money    `json:"amount"`
}

// YearTotals sums the twelve range-report rows of a calendar year.
type YearTotals struct {
	Year     int        `json:"year"`
	Salary   core.Money `json:"salary"`
	Expenses core.Money `json:"expenses"`
	EMITotal core.Money `json:"emiTotal"`
	Savings  core.Money `json:"savings"`
	Months   []Snapshot `json:"months"`
}

// MonthSnapshot computes the summary for one user and period. The EMI total
// is the sum over currently active EMIs; start and end dates are not applied
// here (RangeReport does apply them).
func MonthSnapshot(st core.State, user string, p core.Period) Snapshot {
	return snapshot(p, st.Salaries.Get(user, p), Expenses(st, user, p), ActiveEMITotal(st, user))
}

// RollingSeries returns monthsBack snapshots ending at p, oldest first. Every
// point uses the current active-EMI total. The window never starts before
// 0000-01, so it is shorter for periods in the first months of year 0. An
// invalid period yields nil.
func RollingSeries(st core.State, user string, p core.Period, monthsBack int) []Snapshot {
	if !p.Valid() {
		return nil
	}
	if monthsBack <= 0 {
		monthsBack = DefaultMonthsBack
	}
	first := p
	for i := 1; i < monthsBack; i++ {
		prev := first.Prev()
		if !prev.Valid() {
			break
		}
		first = prev
	}

	byPeriod := expensesByPeriod(st, user)
	emi := ActiveEMITotal(st, user)
	out := make([]Snapshot, 0, monthsBack)
	for _, cur := range core.PeriodRange(first, p) {
		out = append(out, snapshot(cur, st.Salaries.Get(user, cur), byPeriod[cur], emi))
	}
	return out
}

// RangeReport returns one row per period from..to inclusive, ascending. An
// EMI, closed or not, counts toward a period when the first day of that month
// lies inside its start/end window. Unparseable bounds or from > to yield an
// empty report.
func RangeReport(st core.State, user string, from, to string) []Snapshot {
	periods := core.PeriodRange(core.ParsePeriod(from), core.ParsePeriod(to))
	if len(periods) == 0 {
		return []Snapshot{}
	}

	byPeriod := expensesByPeriod(st, user)
	out := make([]Snapshot, 0, len(periods))
	for _, p := range periods {
		out = append(out, snapshot(p, st.Salaries.Get(user, p), byPeriod[p], WindowedEMITotal(st, user, p)))
	}
	return out
}

// YearSummary aggregates the range report of January..December of year.
func YearSummary(st core.State, user string, year int) YearTotals {
	jan := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	from, to := core.PeriodOf(jan), core.PeriodOf(jan.AddDate(0, 11, 0))
	sum := YearTotals{Year: year, Months: RangeReport(st, user, string(from), string(to))}
	for _, m := range sum.Months {
		sum.Salary = sum.Salary.Add(m.Salary)
		sum.Expenses = sum.Expenses.Add(m.Expenses)
		sum.EMITotal = sum.EMITotal.Add(m.EMITotal)
		sum.Savings = sum.Savings.Add(m.Savings)
	}
	return sum
}

// CategoryTotals sums the user's transactions per category across periods.
// Categories without spending are absent. Results are ordered by amount,
// largest first, then by name.
func CategoryTotals(st core.State, user string, periods ...core.Period) []CategoryAmount {
	wanted := make(map[core.Period]bool, len(periods))
	for _, p := range periods {
		wanted[p] = true
	}

	totals := map[core.Category]core.Money{}
	for _, t := range st.Transactions {
		if t.Username != user || !wanted[t.Period()] {
			continue
		}
		totals[t.Category] = totals[t.Category].Add(t.Amount)
	}

	out := make([]CategoryAmount, 0, len(totals))
	for c, m := range totals {
		if m.IsZero() {
			continue
		}
		out = append(out, CategoryAmount{Category: c, Amount: m})
	}
	slices.SortFunc(out, func(a, b CategoryAmount) int {
		if c := cmp.Compare(b.Amount.Cents, a.Amount.Cents); c != 0 {
			return c
		}
		return cmp.Compare(a.Category, b.Category)
	})
	return out
}

// Expenses sums the user's transactions dated in p.
func Expenses(st core.State, user string, p core.Period) core.Money {
	var total core.Money
	for _, t := range st.Transactions {
		if t.Username == user && t.Period() == p {
			total = total.Add(t.Amount)
		}
	}
	return total
}

// ActiveEMITotal sums the monthly amount of the user's active EMIs.
func ActiveEMITotal(st core.State, user string) core.Money {
	var total core.Money
	for _, e := range st.EMIs {
		if e.Username == user && e.IsActive() {
			total = total.Add(e.MonthlyEMI)
		}
	}
	return total
}

// WindowedEMITotal sums every EMI of the user whose window covers the first
// day of p, regardless of status.
func WindowedEMITotal(st core.State, user string, p core.Period) core.Money {
	day, ok := p.Start()
	if !ok {
		return core.Money{}
	}
	var total core.Money
	for _, e := range st.EMIs {
		if e.Username == user && e.ActiveOn(day) {
			total = total.Add(e.MonthlyEMI)
		}
	}
	return total
}

// TransactionsIn lists the user's transactions of p, newest date first. Equal
// dates keep insertion order reversed so the latest entry leads. An
// InvalidPeriod selects every period.
func TransactionsIn(st core.State, user string, p core.Period) []core.Transaction {
	out := []core.Transaction{}
	for i := len(st.Transactions) - 1; i >= 0; i-- {
		t := st.Transactions[i]
		if t.Username == user && (p == core.InvalidPeriod || t.Period() == p) {
			out = append(out, t)
		}
	}
	slices.SortStableFunc(out, func(a, b core.Transaction) int {
		return cmp.Compare(b.Date, a.Date)
	})
	return out
}

// TransactionsForExport lists the user's transactions of p in stored order.
func TransactionsForExport(st core.State, user string, p core.Period) []core.Transaction {
	out := []core.Transaction{}
	for _, t := range st.Transactions {
		if t.Username == user && (p == core.InvalidPeriod || t.Period() == p) {
			out = append(out, t)
		}
	}
	return out
}

func expensesByPeriod(st core.State, user string) map[core.Period]core.Money {
	out := map[core.Period]core.Money{}
	for _, t := range st.Transactions {
		if t.Username != user {
			continue
		}
		p := t.Period()
		out[p] = out[p].Add(t.Amount)
	}
	return out
}

func snapshot(p core.Period, salary, expenses, emi core.Money) Snapshot {
	h := core.AssessHealth(salary, expenses, emi)
	return Snapshot{
		Period:   p,
		Salary:   salary,
		Expenses: expenses,
		EMITotal: emi,
		Savings:  core.Savings(salary, expenses, emi),
		Score:    h.Score,
		Status:   h.Status,
		Tip:      h.Tip,
	}
}
