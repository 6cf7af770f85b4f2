package core

import (
	"errors"
	"testing"
	"time"
)

func TestTransactionValidate(t *testing.T) {
	good := Transaction{Date: "2025-01-01", Description: "ok", Amount: Cents(100), Category: Food}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Transaction{Date: "2025-01-01", Description: "imported", Amount: Cents(1), Category: EMI}).Validate(); err != nil {
		t.Fatalf("classifier category must validate, got %v", err)
	}

	bads := []Transaction{
		{Date: "2025-02-30", Description: "a", Amount: Cents(1), Category: Food},
		{Date: "2025-01-01", Description: "  ", Amount: Cents(1), Category: Food},
		{Date: "2025-01-01", Description: "a", Amount: Cents(0), Category: Food},
		{Date: "2025-01-01", Description: "a", Amount: Cents(1), Category: "Pets"},
		{Date: "2025-01-01", Description: "a", Amount: Cents(MaxAmountCents + 1), Category: Food},
	}
	for i, tx := range bads {
		err := tx.Validate()
		if err == nil {
			t.Fatalf("case %d expected error", i)
		}
		if !IsValidation(err) {
			t.Fatalf("case %d expected ValidationError, got %T", i, err)
		}
	}
}

func TestEMIValidateAndWindow(t *testing.T) {
	e := EMIPlan{Lender: "HDFC", MonthlyEMI: Cents(100000), DueDay: 5, StartDate: "2024-01-01", EndDate: "2024-06-30", Status: EMIActive}
	if err := e.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	march := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	august := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
	december := time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)
	if !e.ActiveOn(march) || e.ActiveOn(august) || e.ActiveOn(december) {
		t.Fatalf("unexpected window evaluation")
	}

	open := EMIPlan{StartDate: "2024-01-01"}
	if !open.ActiveOn(august) {
		t.Fatalf("open-ended emi must stay active")
	}
	broken := EMIPlan{StartDate: "not a date", EndDate: "2020-01-01"}
	if !broken.ActiveOn(december) || !broken.ActiveOn(august) {
		t.Fatalf("unparseable start must count as active")
	}

	huge := e
	huge.MonthlyEMI = Cents(MaxAmountCents + 1)
	if err := huge.Validate(); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}

	bad := e
	bad.EndDate = "2023-12-31"
	if err := bad.Validate(); !errors.Is(err, ErrEndBeforeStart) {
		t.Fatalf("expected ErrEndBeforeStart, got %v", err)
	}
	bad = e
	bad.DueDay = 32
	if err := bad.Validate(); !errors.Is(err, ErrInvalidDueDay) {
		t.Fatalf("expected ErrInvalidDueDay, got %v", err)
	}
}

func TestStateClone(t *testing.T) {
	s := NewState()
	s.Salaries.Set("ann", "2024-01", Cents(5))
	s.Transactions = append(s.Transactions, Transaction{ID: "1", Meta: map[string]string{"k": "v"}})
	c := s.Clone()
	c.Salaries.Set("ann", "2024-01", Cents(9))
	c.Transactions[0].Meta["k"] = "changed"
	if s.Salaries.Get("ann", "2024-01") != Cents(5) || s.Transactions[0].Meta["k"] != "v" {
		t.Fatalf("clone shares memory with original")
	}
}

func TestNotFoundCredentialsIsGeneric(t *testing.T) {
	err := &NotFoundError{What: "credentials", ID: "bob"}
	if err.Error() != "invalid credentials" {
		t.Fatalf("credentials error leaks detail: %q", err.Error())
	}
}
