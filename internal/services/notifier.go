package services

import (
	"context"
	"time"

	"fintrack/internal/core"
)

// Change kinds.
const (
	KindSalary             = "salary"
	KindTransactionAdded   = "transaction.added"
	KindTransactionDeleted = "transaction.deleted"
	KindEMIAdded           = "emi.added"
	KindEMIClosed          = "emi.closed"
	KindImport             = "import"
)

// Change describes one applied command. Periods lists the months whose
// figures may differ; it is empty when every month is affected (EMI changes).
type Change struct {
	User      string
	Kind      string
	Periods   []core.Period
	Timestamp time.Time
}

// Notifier is told about every command that changed the ledger. It must not
// call back into the ledger.
type Notifier interface {
	LedgerChanged(ctx context.Context, c Change)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, c Change)

func (f NotifierFunc) LedgerChanged(ctx context.Context, c Change) { f(ctx, c) }

// Notifiers fans a change out in order.
type Notifiers []Notifier

func (ns Notifiers) LedgerChanged(ctx context.Context, c Change) {
	for _, n := range ns {
		if n != nil {
			n.LedgerChanged(ctx, c)
		}
	}
}
