// Package core holds the ledger domain: money, periods, records, the
// classifier and the health scorer.
package core

import (
	"maps"
	"slices"
	"strings"
	"time"
)

const (
	Food          Category = "Food"
	Travel        Category = "Travel"
	Shopping      Category = "Shopping"
	Bills         Category = "Bills"
	Entertainment Category = "Entertainment"
	Health        Category = "Health"
	Education     Category = "Education"
	Other         Category = "Other"

	// EMI is produced by the classifier for loan wording but is not offered
	// for manual entry.
	EMI Category = "EMI"
)

const (
	EMIActive EMIStatus = "active"
	EMIClosed EMIStatus = "closed"
)

const (
	SourceBank ImportSource = "bank"
	SourceCard ImportSource = "card"
)

// Metadata keys carried on imported transactions.
const (
	MetaSource = "source"
	MetaNote   = "note"
)

const maxDescriptionLen = 200

type (
	Category     string
	EMIStatus    string
	ImportSource string

	Money struct {
		Cents int64
	}

	User struct {
		Username     string `json:"username"`
		PasswordHash string `json:"passwordHash"`
		Biometric    bool   `json:"biometric"`
	}

	Transaction struct {
		ID          string            `json:"id"`
		Username    string            `json:"username"`
		Date        string            `json:"date"` // YYYY-MM-DD
		Description string            `json:"description"`
		Category    Category          `json:"category"`
		Amount      Money             `json:"amount"`
		Account     string            `json:"account,omitempty"`
		Meta        map[string]string `json:"meta,omitempty"`
	}

	// EMIPlan is a recurring loan commitment.
	EMIPlan struct {
		ID         string    `json:"id"`
		Username   string    `json:"username"`
		Lender     string    `json:"lender"`
		Purpose    string    `json:"purpose"`
		MonthlyEMI Money     `json:"monthlyEMI"`
		DueDay     int       `json:"dueDay"`
		StartDate  string    `json:"startDate"`
		EndDate    string    `json:"endDate,omitempty"`
		Status     EMIStatus `json:"status"`
	}

	// SalaryBook maps "username|YYYY-MM" to the salary for that month.
	SalaryBook map[string]Money

	// State is a full snapshot of the record store.
	State struct {
		Users        []User
		ActiveUser   string
		Salaries     SalaryBook
		Transactions []Transaction
		EMIs         []EMIPlan
	}
)

// SelectableCategories lists the categories offered for manual entry.
func SelectableCategories() []Category {
	return []Category{Food, Travel, Shopping, Bills, Entertainment, Health, Education, Other}
}

// IsSelectable reports whether c may be chosen for a manual transaction.
func (c Category) IsSelectable() bool {
	return slices.Contains(SelectableCategories(), c)
}

// IsKnown reports whether c is any category the system can produce.
func (c Category) IsKnown() bool {
	return c == EMI || c.IsSelectable()
}

func (s ImportSource) Valid() bool {
	return s == SourceBank || s == SourceCard
}

// SalaryKey builds the SalaryBook key for a user and period.
func SalaryKey(username string, p Period) string {
	return username + "|" + string(p)
}

// Get returns the salary for the pair, zero when absent.
func (b SalaryBook) Get(username string, p Period) Money {
	return b[SalaryKey(username, p)]
}

// Set records a salary, replacing any previous value.
func (b SalaryBook) Set(username string, p Period, m Money) {
	b[SalaryKey(username, p)] = m
}

// Period returns the period of the transaction date.
func (t Transaction) Period() Period {
	return ParsePeriod(t.Date)
}

func (t Transaction) Validate() error {
	if _, ok := ParseDate(t.Date); !ok {
		return NewValidationError("date", ErrInvalidDate)
	}
	desc := strings.TrimSpace(t.Description)
	if desc == "" {
		return NewValidationError("description", ErrEmptyDescription)
	}
	if len(desc) > maxDescriptionLen {
		return NewValidationError("description", ErrDescriptionTooLong)
	}
	if t.Amount.Cents <= 0 || t.Amount.Cents > MaxAmountCents {
		return NewValidationError("amount", ErrInvalidAmount)
	}
	if !t.Category.IsKnown() {
		return NewValidationError("category", ErrInvalidCategory)
	}
	return nil
}

// Start parses the start date.
func (e EMIPlan) Start() (time.Time, bool) { return ParseDate(e.StartDate) }

// End parses the end date; ok is false when unset or unparseable.
func (e EMIPlan) End() (time.Time, bool) { return ParseDate(e.EndDate) }

func (e EMIPlan) IsActive() bool { return e.Status == EMIActive }

// ActiveOn reports whether day falls inside the EMI window. An unparseable
// start date counts as active everywhere.
func (e EMIPlan) ActiveOn(day time.Time) bool {
	start, ok := e.Start()
	if !ok {
		return true
	}
	if day.Before(start) {
		return false
	}
	if end, ok := e.End(); ok && day.After(end) {
		return false
	}
	return true
}

func (e EMIPlan) Validate() error {
	if strings.TrimSpace(e.Lender) == "" {
		return NewValidationError("lender", ErrEmptyDescription)
	}
	if e.MonthlyEMI.Cents <= 0 || e.MonthlyEMI.Cents > MaxAmountCents {
		return NewValidationError("monthlyEMI", ErrInvalidAmount)
	}
	if e.DueDay < 1 || e.DueDay > 31 {
		return NewValidationError("dueDay", ErrInvalidDueDay)
	}
	start, ok := e.Start()
	if !ok {
		return NewValidationError("startDate", ErrInvalidDate)
	}
	if e.EndDate != "" {
		end, ok := e.End()
		if !ok {
			return NewValidationError("endDate", ErrInvalidDate)
		}
		if end.Before(start) {
			return NewValidationError("endDate", ErrEndBeforeStart)
		}
	}
	return nil
}

// NewState returns an empty snapshot with initialized collections.
func NewState() State {
	return State{Salaries: SalaryBook{}}
}

// Clone deep-copies the snapshot so readers never share slices with writers.
func (s State) Clone() State {
	out := State{
		Users:        slices.Clone(s.Users),
		ActiveUser:   s.ActiveUser,
		Salaries:     maps.Clone(s.Salaries),
		Transactions: make([]Transaction, len(s.Transactions)),
		EMIs:         slices.Clone(s.EMIs),
	}
	if out.Salaries == nil {
		out.Salaries = SalaryBook{}
	}
	for i, t := range s.Transactions {
		t.Meta = maps.Clone(t.Meta)
		out.Transactions[i] = t
	}
	return out
}

// FindUser returns the user with the given name.
func (s State) FindUser(username string) (User, bool) {
	for _, u := range s.Users {
		if u.Username == username {
			return u, true
		}
	}
	return User{}, false
}
