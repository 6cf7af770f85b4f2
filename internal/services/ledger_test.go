package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"fintrack/internal/core"
	"fintrack/internal/storage"
	"fintrack/internal/storage/memory"
)

var testNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

type recorder struct{ changes []Change }

func (r *recorder) LedgerChanged(_ context.Context, c Change) { r.changes = append(r.changes, c) }

type failingKV struct {
	*memory.Store
	fail bool
}

func (f *failingKV) Set(ctx context.Context, key string, value []byte) error {
	if f.fail {
		return errors.New("quota exceeded")
	}
	return f.Store.Set(ctx, key, value)
}

func newTestLedger(t *testing.T, kv storage.KV, opts ...Option) (*Ledger, *recorder) {
	t.Helper()
	rec := &recorder{}
	n := 0
	base := []Option{
		WithNotifier(rec),
		WithClock(func() time.Time { return testNow }),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%d", n) }),
		WithHashCost(bcrypt.MinCost),
	}
	return NewLedger(context.Background(), storage.NewRecords(kv, nil), append(base, opts...)...), rec
}

func loggedIn(t *testing.T) (*Ledger, *recorder, *memory.Store) {
	t.Helper()
	kv := memory.New()
	l, rec := newTestLedger(t, kv)
	ctx := context.Background()
	require.NoError(t, l.Signup(ctx, SignupInput{Username: "asha", Password: "secret", Biometric: true}))
	require.NoError(t, l.Login(ctx, LoginInput{Username: "asha", Password: "secret"}))
	return l, rec, kv
}

func TestSignupAndLogin(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	l, _ := newTestLedger(t, kv)

	require.NoError(t, l.Signup(ctx, SignupInput{Username: "asha", Password: "secret"}))

	err := l.Signup(ctx, SignupInput{Username: "asha", Password: "other1"})
	require.True(t, core.IsValidation(err))
	assert.ErrorIs(t, err, core.ErrUserExists)

	wrongPass := l.Login(ctx, LoginInput{Username: "asha", Password: "nope"})
	unknown := l.Login(ctx, LoginInput{Username: "ghost", Password: "secret"})
	require.True(t, core.IsNotFound(wrongPass))
	require.True(t, core.IsNotFound(unknown))
	assert.Equal(t, wrongPass.Error(), unknown.Error())
	assert.Equal(t, "invalid credentials", unknown.Error())
	assert.Equal(t, "", l.ActiveUser())

	require.NoError(t, l.Login(ctx, LoginInput{Username: " asha ", Password: "secret"}))
	assert.Equal(t, "asha", l.ActiveUser())

	// A fresh ledger over the same store resumes the session.
	again, _ := newTestLedger(t, kv)
	assert.Equal(t, "asha", again.ActiveUser())
	users := again.Snapshot().Users
	require.Len(t, users, 1)
	assert.NotEqual(t, "secret", users[0].PasswordHash)

	require.NoError(t, again.Logout(ctx))
	assert.Equal(t, "", again.ActiveUser())
	third, _ := newTestLedger(t, kv)
	assert.Equal(t, "", third.ActiveUser())
}

func TestSignupValidation(t *testing.T) {
	l, _ := newTestLedger(t, memory.New())

	tests := []struct {
		name  string
		in    SignupInput
		field string
	}{
		{"blank username", SignupInput{Username: "   ", Password: "secret"}, "username"},
		{"short password", SignupInput{Username: "a", Password: "abc"}, "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := l.Signup(context.Background(), tt.in)
			var ve *core.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestBiometricLogin(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, memory.New())
	require.NoError(t, l.Signup(ctx, SignupInput{Username: "bio", Password: "secret", Biometric: true}))
	require.NoError(t, l.Signup(ctx, SignupInput{Username: "plain", Password: "secret"}))

	assert.True(t, core.IsNotFound(l.BiometricLogin(ctx, "plain")))
	assert.True(t, core.IsNotFound(l.BiometricLogin(ctx, "ghost")))
	require.NoError(t, l.BiometricLogin(ctx, "bio"))
	assert.Equal(t, "bio", l.ActiveUser())
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	l, _, _ := loggedIn(t)

	err := l.ChangePassword(ctx, ChangePasswordInput{Current: "wrong", New: "newpass"})
	assert.True(t, core.IsNotFound(err))

	require.NoError(t, l.ChangePassword(ctx, ChangePasswordInput{Current: "secret", New: "newpass"}))
	require.NoError(t, l.Logout(ctx))
	assert.True(t, core.IsNotFound(l.Login(ctx, LoginInput{Username: "asha", Password: "secret"})))
	require.NoError(t, l.Login(ctx, LoginInput{Username: "asha", Password: "newpass"}))
}

func TestCommandsRequireActiveUser(t *testing.T) {
	ctx := context.Background()
	l, rec := newTestLedger(t, memory.New())

	err := l.SetSalary(ctx, SalaryInput{Period: "2024-01", Amount: core.Cents(100)})
	assert.ErrorIs(t, err, core.ErrNoActiveUser)

	_, err = l.Summary("2024-01")
	assert.ErrorIs(t, err, core.ErrNoActiveUser)

	_, err = l.ImportCSV(ctx, strings.NewReader("date,desc,amount\n2024-01-01,x,1"), ImportInput{Source: core.SourceBank})
	assert.ErrorIs(t, err, core.ErrNoActiveUser)

	assert.Empty(t, rec.changes)
}

func TestSetSalaryAndSummary(t *testing.T) {
	ctx := context.Background()
	l, rec, _ := loggedIn(t)

	require.NoError(t, l.SetSalary(ctx, SalaryInput{Period: "2024-01", Amount: core.Cents(4000000)}))
	require.NoError(t, l.SetSalary(ctx, SalaryInput{Period: "2024-01", Amount: core.Cents(5000000)}))

	_, err := l.AddTransaction(ctx, TransactionInput{Date: "2024-01-10", Description: "Groceries", Amount: core.Cents(2000000)})
	require.NoError(t, err)
	_, err = l.AddEMI(ctx, EMIInput{Lender: "HDFC", MonthlyEMI: core.Cents(1500000), DueDay: 5, StartDate: "2023-01-01"})
	require.NoError(t, err)

	snap, err := l.Summary("2024-01")
	require.NoError(t, err)
	assert.Equal(t, core.Cents(5000000), snap.Salary, "last write wins")
	assert.Equal(t, 30, snap.Score)
	assert.Equal(t, core.StatusHealthy, snap.Status)

	require.Len(t, rec.changes, 4)
	assert.Equal(t, KindSalary, rec.changes[0].Kind)
	assert.Equal(t, []core.Period{"2024-01"}, rec.changes[0].Periods)
	assert.Equal(t, "asha", rec.changes[0].User)
	assert.Equal(t, testNow, rec.changes[0].Timestamp)
	assert.Equal(t, KindEMIAdded, rec.changes[3].Kind)
	assert.Empty(t, rec.changes[3].Periods)

	_, err = l.Summary("not-a-period")
	assert.True(t, core.IsValidation(err))
}

func TestSetSalaryValidation(t *testing.T) {
	ctx := context.Background()
	l, rec, _ := loggedIn(t)

	err := l.SetSalary(ctx, SalaryInput{Period: "2024-13", Amount: core.Cents(100)})
	assert.ErrorIs(t, err, core.ErrInvalidPeriod)

	err = l.SetSalary(ctx, SalaryInput{Period: "2024-01"})
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	err = l.SetSalary(ctx, SalaryInput{Period: "2024-01", Amount: core.Cents(core.MaxAmountCents + 1)})
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	assert.Empty(t, rec.changes)
	assert.Empty(t, l.Snapshot().Salaries)
}

func TestAddTransaction(t *testing.T) {
	ctx := context.Background()
	l, _, _ := loggedIn(t)

	tx, err := l.AddTransaction(ctx, TransactionInput{
		Date:        "2024/03/02",
		Description: "  Uber to airport ",
		Amount:      core.Cents(45000),
	})
	require.NoError(t, err)
	assert.Equal(t, "id-1", tx.ID)
	assert.Equal(t, "2024-03-02", tx.Date)
	assert.Equal(t, "Uber to airport", tx.Description)
	assert.Equal(t, core.Travel, tx.Category, "classifier fills empty category")

	tx, err = l.AddTransaction(ctx, TransactionInput{
		Date: "2024-03-03", Description: "Textbooks", Category: core.Education, Amount: core.Cents(100),
	})
	require.NoError(t, err)
	assert.Equal(t, core.Education, tx.Category)

	txs, err := l.Transactions("2024-03")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "Textbooks", txs[0].Description)
}

func TestAddTransactionValidation(t *testing.T) {
	ctx := context.Background()
	l, rec, _ := loggedIn(t)

	tests := []struct {
		name    string
		in      TransactionInput
		wantErr error
	}{
		{"empty description", TransactionInput{Date: "2024-03-01", Description: "  ", Amount: core.Cents(1)}, core.ErrEmptyDescription},
		{"zero amount", TransactionInput{Date: "2024-03-01", Description: "x"}, core.ErrInvalidAmount},
		{"negative amount", TransactionInput{Date: "2024-03-01", Description: "x", Amount: core.Cents(-5)}, core.ErrInvalidAmount},
		{"bad date", TransactionInput{Date: "31/03/2024", Description: "x", Amount: core.Cents(1)}, core.ErrInvalidDate},
		{"emi not selectable", TransactionInput{Date: "2024-03-01", Description: "x", Category: core.EMI, Amount: core.Cents(1)}, core.ErrInvalidCategory},
		{"too long", TransactionInput{Date: "2024-03-01", Description: strings.Repeat("a", 201), Amount: core.Cents(1)}, core.ErrDescriptionTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.AddTransaction(ctx, tt.in)
			require.True(t, core.IsValidation(err), "got %v", err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Empty(t, l.Snapshot().Transactions)
	assert.Empty(t, rec.changes)
}

func TestDeleteTransaction(t *testing.T) {
	ctx := context.Background()
	l, rec, _ := loggedIn(t)

	tx, err := l.AddTransaction(ctx, TransactionInput{Date: "2024-02-01", Description: "Rent", Amount: core.Cents(100)})
	require.NoError(t, err)

	assert.True(t, core.IsNotFound(l.DeleteTransaction(ctx, "missing")))
	require.NoError(t, l.DeleteTransaction(ctx, tx.ID))
	assert.Empty(t, l.Snapshot().Transactions)

	last := rec.changes[len(rec.changes)-1]
	assert.Equal(t, KindTransactionDeleted, last.Kind)
	assert.Equal(t, []core.Period{"2024-02"}, last.Periods)
}

func TestTransactionsAreScopedToUser(t *testing.T) {
	ctx := context.Background()
	l, _, _ := loggedIn(t)
	tx, err := l.AddTransaction(ctx, TransactionInput{Date: "2024-02-01", Description: "Rent", Amount: core.Cents(100)})
	require.NoError(t, err)

	require.NoError(t, l.Signup(ctx, SignupInput{Username: "ravi", Password: "secret"}))
	require.NoError(t, l.Login(ctx, LoginInput{Username: "ravi", Password: "secret"}))

	txs, err := l.Transactions("")
	require.NoError(t, err)
	assert.Empty(t, txs)
	assert.True(t, core.IsNotFound(l.DeleteTransaction(ctx, tx.ID)))
}

func TestEMILifecycle(t *testing.T) {
	ctx := context.Background()
	l, _, _ := loggedIn(t)

	e, err := l.AddEMI(ctx, EMIInput{
		Lender: "SBI", Purpose: "Car", MonthlyEMI: core.Cents(100000), DueDay: 10,
		StartDate: "2024-01-01", EndDate: "2024-06-30",
	})
	require.NoError(t, err)
	assert.Equal(t, core.EMIActive, e.Status)

	dues, err := l.UpcomingDues()
	require.NoError(t, err)
	require.Len(t, dues, 1)
	assert.Equal(t, "2024-04-10", dues[0].DueDate)

	closed, err := l.CloseEMI(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, core.EMIClosed, closed.Status)

	_, err = l.CloseEMI(ctx, e.ID)
	assert.ErrorIs(t, err, core.ErrEMIClosed)
	_, err = l.CloseEMI(ctx, "nope")
	assert.True(t, core.IsNotFound(err))

	emis, err := l.EMIs()
	require.NoError(t, err)
	require.Len(t, emis, 1, "closed EMIs are kept")

	dues, err = l.UpcomingDues()
	require.NoError(t, err)
	assert.Empty(t, dues)

	march, err := l.Report("2024-03", "2024-03")
	require.NoError(t, err)
	assert.Equal(t, core.Cents(100000), march[0].EMITotal)

	aug, err := l.Report("2024-08", "2024-08")
	require.NoError(t, err)
	assert.True(t, aug[0].EMITotal.IsZero())
}

func TestAddEMIValidation(t *testing.T) {
	ctx := context.Background()
	l, _, _ := loggedIn(t)

	tests := []struct {
		name    string
		in      EMIInput
		wantErr error
	}{
		{"due day", EMIInput{Lender: "x", MonthlyEMI: core.Cents(1), DueDay: 32, StartDate: "2024-01-01"}, core.ErrInvalidDueDay},
		{"zero due day", EMIInput{Lender: "x", MonthlyEMI: core.Cents(1), StartDate: "2024-01-01"}, core.ErrInvalidDueDay},
		{"amount", EMIInput{Lender: "x", DueDay: 1, StartDate: "2024-01-01"}, core.ErrInvalidAmount},
		{"start", EMIInput{Lender: "x", MonthlyEMI: core.Cents(1), DueDay: 1, StartDate: "soon"}, core.ErrInvalidDate},
		{"end before start", EMIInput{Lender: "x", MonthlyEMI: core.Cents(1), DueDay: 1, StartDate: "2024-05-01", EndDate: "2024-01-01"}, core.ErrEndBeforeStart},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.AddEMI(ctx, tt.in)
			require.True(t, core.IsValidation(err), "got %v", err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestImportCSV(t *testing.T) {
	ctx := context.Background()
	l, rec, _ := loggedIn(t)

	input := "date,description,amount,account\n" +
		"2024-01-05,Uber ride,250,HDFC\n" +
		"2024-02-07,Netflix,649,HDFC\n" +
		"bad,skipped,1,HDFC\n"
	res, err := l.ImportCSV(ctx, strings.NewReader(input), ImportInput{Source: core.SourceCard, Note: "jan+feb"})
	require.NoError(t, err)
	assert.Len(t, res.Transactions, 2)
	assert.Equal(t, 1, res.Skipped)

	txs, err := l.Transactions("2024-01")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, core.Travel, txs[0].Category)
	assert.Equal(t, "card", txs[0].Meta[core.MetaSource])
	assert.Equal(t, "jan+feb", txs[0].Meta[core.MetaNote])

	last := rec.changes[len(rec.changes)-1]
	assert.Equal(t, KindImport, last.Kind)
	assert.Equal(t, []core.Period{"2024-01", "2024-02"}, last.Periods)
}

func TestImportCSVIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	l, rec, _ := loggedIn(t)

	_, err := l.ImportCSV(ctx, strings.NewReader("when,what\n2024-01-01,x"), ImportInput{Source: core.SourceBank})
	assert.True(t, core.IsImportFormat(err))

	_, err = l.ImportCSV(ctx, strings.NewReader("date,desc,amount\nbad,x,1"), ImportInput{Source: core.SourceBank})
	assert.True(t, core.IsImportFormat(err))

	_, err = l.ImportCSV(ctx, strings.NewReader("date,desc,amount\n2024-01-01,x,1"), ImportInput{Source: "cash"})
	assert.True(t, core.IsValidation(err))

	assert.Empty(t, l.Snapshot().Transactions)
	assert.Empty(t, rec.changes)
}

func TestStorageFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	kv := &failingKV{Store: memory.New()}
	l, rec := newTestLedger(t, kv)
	require.NoError(t, l.Signup(ctx, SignupInput{Username: "asha", Password: "secret"}))
	require.NoError(t, l.Login(ctx, LoginInput{Username: "asha", Password: "secret"}))

	kv.fail = true
	tx, err := l.AddTransaction(ctx, TransactionInput{Date: "2024-03-01", Description: "Lunch", Amount: core.Cents(500)})
	require.Error(t, err)
	assert.True(t, IsWarning(err))
	assert.True(t, core.IsStorage(err))
	assert.NotEmpty(t, tx.ID)

	txs, err := l.Transactions("2024-03")
	require.NoError(t, err)
	assert.Len(t, txs, 1, "in-memory state stays authoritative")
	assert.Len(t, rec.changes, 1)
}

func TestQueries(t *testing.T) {
	ctx := context.Background()
	l, _, _ := loggedIn(t)
	require.NoError(t, l.SetSalary(ctx, SalaryInput{Period: "2024-03", Amount: core.Cents(1000000)}))
	for _, in := range []TransactionInput{
		{Date: "2024-03-01", Description: "Swiggy", Amount: core.Cents(30000)},
		{Date: "2024-03-02", Description: "Amazon", Amount: core.Cents(50000)},
		{Date: "2024-02-02", Description: "Zomato", Amount: core.Cents(10000)},
	} {
		_, err := l.AddTransaction(ctx, in)
		require.NoError(t, err)
	}

	series, err := l.Series("2024-03", 0)
	require.NoError(t, err)
	assert.Len(t, series, 12)

	series, err = l.Series("2024-03", 2)
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, core.Period("2024-02"), series[0].Period)

	rows, err := l.Report("2024-04", "2024-01")
	require.NoError(t, err)
	assert.Empty(t, rows)

	cats, err := l.Categories("2024-03", "2024-02")
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, core.Shopping, cats[0].Category)
	assert.Equal(t, core.Cents(40000), cats[1].Amount)

	_, err = l.Categories("garbage")
	assert.True(t, core.IsValidation(err))

	year, err := l.Year(2024)
	require.NoError(t, err)
	assert.Equal(t, core.Cents(90000), year.Expenses)
	_, err = l.Year(0)
	assert.True(t, core.IsValidation(err))

	var buf bytes.Buffer
	require.NoError(t, l.ExportCSV(&buf, "2024-03"))
	assert.Equal(t, "date,description,category,amount,account\n"+
		"2024-03-01,Swiggy,Food,300,\n"+
		"2024-03-02,Amazon,Shopping,500,\n", buf.String())

	assert.Equal(t, core.Period("2024-03"), l.CurrentPeriod())
}

func TestNewLedgerDropsUnknownActiveUser(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	require.NoError(t, storage.NewRecords(kv, nil).SaveActiveUser(ctx, "ghost"))

	l, _ := newTestLedger(t, kv)
	assert.Equal(t, "", l.ActiveUser())
}
