package worker

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/storage"
	"fintrack/internal/storage/memory"
)

var testNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

type staticLoader struct{ st core.State }

func (l staticLoader) LoadState(context.Context) core.State { return l.st }

func fixture() core.State {
	st := core.NewState()
	st.Users = []core.User{{Username: "asha"}, {Username: "ravi"}}
	st.Salaries.Set("asha", "2024-02", core.Cents(1000000))
	st.Salaries.Set("asha", "2024-03", core.Cents(1000000))
	st.Salaries.Set("ravi", "2024-03", core.Cents(1000000))
	st.Transactions = []core.Transaction{
		{ID: "1", Username: "asha", Date: "2024-02-03", Description: "Rent", Category: core.Bills, Amount: core.Cents(1200000)},
		{ID: "2", Username: "asha", Date: "2024-03-03", Description: "Rent", Category: core.Bills, Amount: core.Cents(900000)},
		{ID: "3", Username: "ravi", Date: "2024-03-04", Description: "Groceries", Category: core.Food, Amount: core.Cents(100000)},
	}
	return st
}

func newWorker(st core.State) (*HealthWorker, *[]Alert) {
	alerts := &[]Alert{}
	w := NewHealthWorker(staticLoader{st}, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithClock(func() time.Time { return testNow }),
		WithAlertHandler(func(_ context.Context, a Alert) { *alerts = append(*alerts, a) }),
	)
	return w, alerts
}

func TestHandleLedgerChanged(t *testing.T) {
	w, alerts := newWorker(fixture())

	err := w.HandleLedgerChanged(context.Background(), &amqp.LedgerChangedMessage{
		User: "asha", Kind: "import", Periods: []string{"2024-02", "2024-03"},
	})
	require.NoError(t, err)
	require.Len(t, *alerts, 2)
	assert.Equal(t, core.StatusOverBudget, (*alerts)[0].Snapshot.Status)
	assert.Equal(t, core.Period("2024-02"), (*alerts)[0].Snapshot.Period)
	assert.Equal(t, core.StatusWatch, (*alerts)[1].Snapshot.Status)

	// Same tiers again: no new alerts.
	require.NoError(t, w.HandleLedgerChanged(context.Background(), &amqp.LedgerChangedMessage{
		User: "asha", Kind: "salary", Periods: []string{"2024-03"},
	}))
	assert.Len(t, *alerts, 2)
}

func TestHandleLedgerChangedDefaultsToCurrentMonth(t *testing.T) {
	w, alerts := newWorker(fixture())

	require.NoError(t, w.HandleLedgerChanged(context.Background(), &amqp.LedgerChangedMessage{User: "asha", Kind: "emi.added"}))
	require.Len(t, *alerts, 1)
	assert.Equal(t, core.Period("2024-03"), (*alerts)[0].Snapshot.Period)
}

func TestHandleLedgerChangedHealthyOrUnknown(t *testing.T) {
	w, alerts := newWorker(fixture())
	ctx := context.Background()

	require.NoError(t, w.HandleLedgerChanged(ctx, &amqp.LedgerChangedMessage{User: "ravi", Periods: []string{"2024-03"}}))
	require.NoError(t, w.HandleLedgerChanged(ctx, &amqp.LedgerChangedMessage{User: "ghost", Periods: []string{"2024-03"}}))
	assert.Empty(t, *alerts)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, w.HandleLedgerChanged(cancelled, &amqp.LedgerChangedMessage{User: "asha"}), context.Canceled)
}

func TestSweep(t *testing.T) {
	w, alerts := newWorker(fixture())

	require.NoError(t, w.Sweep(context.Background()))
	require.Len(t, *alerts, 1)
	assert.Equal(t, "asha", (*alerts)[0].User)
}

func TestSweepForgetsPastMonths(t *testing.T) {
	w, alerts := newWorker(fixture())
	ctx := context.Background()

	require.NoError(t, w.HandleLedgerChanged(ctx, &amqp.LedgerChangedMessage{
		User: "asha", Periods: []string{"2024-02", "2024-03"},
	}))
	require.Len(t, *alerts, 2)
	assert.Len(t, w.lastStatus, 2)

	require.NoError(t, w.Sweep(ctx))
	assert.Len(t, *alerts, 2, "March tier is unchanged")
	assert.NotContains(t, w.lastStatus, statusKey{user: "asha", period: "2024-02"})
	assert.Contains(t, w.lastStatus, statusKey{user: "asha", period: "2024-03"})

	// A month later only the new month is tracked.
	w.now = func() time.Time { return testNow.AddDate(0, 1, 0) }
	require.NoError(t, w.Sweep(ctx))
	for k := range w.lastStatus {
		assert.Equal(t, core.Period("2024-04"), k.period)
	}
}

func TestSweepReadsRecords(t *testing.T) {
	ctx := context.Background()
	records := storage.NewRecords(memory.New(), nil)
	st := fixture()
	require.NoError(t, records.SaveUsers(ctx, st.Users))
	require.NoError(t, records.SaveSalaries(ctx, st.Salaries))
	require.NoError(t, records.SaveTransactions(ctx, st.Transactions))

	var alerts []Alert
	w := NewHealthWorker(records, nil,
		WithClock(func() time.Time { return testNow }),
		WithAlertHandler(func(_ context.Context, a Alert) { alerts = append(alerts, a) }),
	)
	require.NoError(t, w.Sweep(ctx))
	require.Len(t, alerts, 1)
	assert.Equal(t, core.StatusWatch, alerts[0].Snapshot.Status)
}

func TestRunSweepsStopsOnCancel(t *testing.T) {
	w, _ := newWorker(fixture())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.RunSweeps(ctx, time.Millisecond) }()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("RunSweeps did not stop")
	}
}
