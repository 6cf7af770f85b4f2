// Package worker recomputes month snapshots after ledger changes and raises
// budget alerts.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/engine"
	applog "fintrack/internal/log"
)

// StateLoader reads the persisted ledger; *storage.Records satisfies it.
type StateLoader interface {
	LoadState(ctx context.Context) core.State
}

// Alert is raised when a month enters the watch or over-budget tier.
type Alert struct {
	User     string
	Snapshot engine.Snapshot
}

type HealthWorker struct {
	loader  StateLoader
	logger  *slog.Logger
	now     func() time.Time
	onAlert func(context.Context, Alert)

	mu         sync.Mutex
	lastStatus map[statusKey]core.HealthStatus
}

type statusKey struct {
	user   string
	period core.Period
}

type Option func(*HealthWorker)

func WithClock(now func() time.Time) Option { return func(w *HealthWorker) { w.now = now } }

// WithAlertHandler receives every alert in addition to the log line.
func WithAlertHandler(f func(context.Context, Alert)) Option {
	return func(w *HealthWorker) { w.onAlert = f }
}

func NewHealthWorker(loader StateLoader, logger *slog.Logger, opts ...Option) *HealthWorker {
	if logger == nil {
		logger = slog.Default()
	}
	w := &HealthWorker{
		loader:     loader,
		logger:     logger.With(applog.FieldComponent, applog.ComponentWorker),
		now:        time.Now,
		lastStatus: make(map[statusKey]core.HealthStatus),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// HandleLedgerChanged recomputes the months named by msg, or the current
// month when it names none (EMI changes touch every month).
func (w *HealthWorker) HandleLedgerChanged(ctx context.Context, msg *amqp.LedgerChangedMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	st := w.loader.LoadState(ctx)
	if _, ok := st.FindUser(msg.User); !ok {
		// Nothing to recompute; retrying will not help.
		w.logger.WarnContext(ctx, "Change for unknown user ignored",
			applog.FieldUser, msg.User, applog.FieldKind, msg.Kind)
		return nil
	}

	periods := msg.AffectedPeriods()
	if len(periods) == 0 {
		periods = []core.Period{core.CurrentPeriodAt(w.now)}
	}

	w.logger.InfoContext(ctx, "Processing ledger change",
		applog.FieldUser, msg.User,
		applog.FieldKind, msg.Kind,
		"periods", len(periods))

	for _, p := range periods {
		w.check(ctx, msg.User, engine.MonthSnapshot(st, msg.User, p))
	}
	return nil
}

// Sweep re-checks the current month of every user. It backs up the event
// path when messages were lost. Alert state for earlier months is dropped.
func (w *HealthWorker) Sweep(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	st := w.loader.LoadState(ctx)
	p := core.CurrentPeriodAt(w.now)
	w.forgetBefore(p)
	for _, u := range st.Users {
		w.check(ctx, u.Username, engine.MonthSnapshot(st, u.Username, p))
	}
	w.logger.DebugContext(ctx, "Sweep completed", "users", len(st.Users), applog.FieldPeriod, string(p))
	return nil
}

// RunSweeps calls Sweep every interval until ctx ends.
func (w *HealthWorker) RunSweeps(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("sweep: %w", err)
			}
		}
	}
}

// forgetBefore drops alert state for months before p.
func (w *HealthWorker) forgetBefore(p core.Period) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for k := range w.lastStatus {
		if k.period < p {
			delete(w.lastStatus, k)
		}
	}
}

// check alerts when a month moves into watch or over-budget. Repeats of the
// same tier are only logged at debug level.
func (w *HealthWorker) check(ctx context.Context, user string, snap engine.Snapshot) {
	key := statusKey{user: user, period: snap.Period}

	w.mu.Lock()
	prev, seen := w.lastStatus[key]
	w.lastStatus[key] = snap.Status
	w.mu.Unlock()

	fields := []any{
		applog.FieldUser, user,
		applog.FieldPeriod, string(snap.Period),
		applog.FieldStatus, string(snap.Status),
		applog.FieldScore, snap.Score,
	}
	if snap.Status != core.StatusWatch && snap.Status != core.StatusOverBudget {
		w.logger.DebugContext(ctx, "Month snapshot recomputed", fields...)
		return
	}
	if seen && prev == snap.Status {
		w.logger.DebugContext(ctx, "Budget alert unchanged", fields...)
		return
	}

	w.logger.WarnContext(ctx, "Budget alert", append(fields, "tip", snap.Tip)...)
	if w.onAlert != nil {
		w.onAlert(ctx, Alert{User: user, Snapshot: snap})
	}
}
