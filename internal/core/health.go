package core

import "github.com/shopspring/decimal"

// HealthStatus is the budget tier of a period.
type HealthStatus string

const (
	StatusNoIncome   HealthStatus = "no-income"
	StatusOverBudget HealthStatus = "over-budget"
	StatusWatch      HealthStatus = "watch"
	StatusHealthy    HealthStatus = "healthy"
)

const (
	TipNoSalary   = "Add your salary for this month to get a health score."
	TipOverBudget = "You are spending more than you earn. Cut discretionary expenses first."
	TipHighEMI    = "EMIs take more than 40% of your income. Avoid new loans and consider prepaying the costliest one."
	TipLowSavings = "You are saving less than 20% of your income. Set a monthly savings target."
	TipHealthy    = "Good job! Your spending is under control. Keep investing the surplus."
)

const (
	overspendPenalty = 20
	emiLoadPenalty   = 10
)

var (
	hundred = decimal.NewFromInt(100)
	emiLoad    = decimal.RequireFromString("0.4")
	watchShare = decimal.NewFromInt(85)
	five       = decimal.NewFromInt(5)
)

// HealthReport is the scored view of one period.
type HealthReport struct {
	Score  int          `json:"score"`
	Status HealthStatus `json:"status"`
	Tip    string       `json:"tip"`
}

// AssessHealth scores a period from its salary, expense and EMI totals.
func AssessHealth(salary, expenses, emiTotal Money) HealthReport {
	return HealthReport{
		Score:  HealthScore(salary, expenses, emiTotal),
		Status: HealthStatusOf(salary, expenses, emiTotal),
		Tip:    HealthTip(salary, expenses, emiTotal),
	}
}

// HealthScore returns a 0-100 score; 0 when there is no salary.
func HealthScore(salary, expenses, emiTotal Money) int {
	if salary.Cents <= 0 {
		return 0
	}
	sal := salary.Decimal()
	utilisation := expenses.Decimal().Add(emiTotal.Decimal()).Div(sal)

	score := hundred.Sub(decimal.Min(hundred, utilisation.Mul(hundred)))
	if utilisation.GreaterThan(decimal.NewFromInt(1)) {
		score = score.Sub(decimal.NewFromInt(overspendPenalty))
	}
	if emiTotal.Decimal().Div(sal).GreaterThan(emiLoad) {
		score = score.Sub(decimal.NewFromInt(emiLoadPenalty))
	}
	score = decimal.Max(decimal.Zero, decimal.Min(hundred, score))
	return int(score.Round(0).IntPart())
}

// HealthStatusOf derives the tier directly from the totals. Comparisons run
// on decimals so large totals cannot overflow.
func HealthStatusOf(salary, expenses, emiTotal Money) HealthStatus {
	sal := salary.Decimal()
	used := expenses.Decimal().Add(emiTotal.Decimal())
	switch {
	case salary.Cents <= 0:
		return StatusNoIncome
	case used.GreaterThan(sal):
		return StatusOverBudget
	case used.Mul(hundred).GreaterThan(sal.Mul(watchShare)):
		return StatusWatch
	default:
		return StatusHealthy
	}
}

// HealthTip picks the first advisory message that applies.
func HealthTip(salary, expenses, emiTotal Money) string {
	sal := salary.Decimal()
	used := expenses.Decimal().Add(emiTotal.Decimal())
	savings := Savings(salary, expenses, emiTotal)
	switch {
	case salary.Cents <= 0:
		return TipNoSalary
	case used.GreaterThan(sal):
		return TipOverBudget
	case emiTotal.Decimal().GreaterThan(sal.Mul(emiLoad)):
		return TipHighEMI
	case savings.Decimal().Mul(five).LessThan(sal):
		return TipLowSavings
	default:
		return TipHealthy
	}
}

// Savings is what is left of the salary, never negative.
func Savings(salary, expenses, emiTotal Money) Money {
	if expenses.Cents >= salary.Cents || emiTotal.Cents >= salary.Cents-expenses.Cents {
		return Money{}
	}
	return Money{Cents: salary.Cents - expenses.Cents - emiTotal.Cents}
}
