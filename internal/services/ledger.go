// Package services holds the Ledger, the single owner of application state.
//
// Commands validate their typed input, mutate the in-memory state, save the
// touched collections and notify listeners. Queries read a consistent state
// under a read lock and delegate to the engine.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"fintrack/internal/core"
	"fintrack/internal/csvio"
	"fintrack/internal/engine"
	applog "fintrack/internal/log"
	"fintrack/internal/storage"
)

const bcryptCost = 12

type Ledger struct {
	mu       sync.RWMutex
	state    core.State
	records  *storage.Records
	notifier Notifier
	validate *validator.Validate
	logger   *slog.Logger

	now      func() time.Time
	newID    func() string
	hashCost int
	months   int
}

type Option func(*Ledger)

func WithNotifier(n Notifier) Option { return func(l *Ledger) { l.notifier = n } }

func WithClock(now func() time.Time) Option { return func(l *Ledger) { l.now = now } }

func WithIDGenerator(f func() string) Option { return func(l *Ledger) { l.newID = f } }

func WithLogger(logger *slog.Logger) Option { return func(l *Ledger) { l.logger = logger } }

// WithHashCost overrides the bcrypt cost; tests use bcrypt.MinCost.
func WithHashCost(cost int) Option { return func(l *Ledger) { l.hashCost = cost } }

// WithRollingMonths sets the default length of Series.
func WithRollingMonths(n int) Option { return func(l *Ledger) { l.months = n } }

// NewLedger loads the persisted state from records.
func NewLedger(ctx context.Context, records *storage.Records, opts ...Option) *Ledger {
	l := &Ledger{
		records:  records,
		validate: newValidator(),
		logger:   slog.Default(),
		now:      time.Now,
		newID:    uuid.NewString,
		hashCost: bcryptCost,
		months:   engine.DefaultMonthsBack,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(applog.FieldComponent, applog.ComponentLedger)
	l.state = records.LoadState(ctx)
	if l.state.ActiveUser != "" {
		if _, ok := l.state.FindUser(l.state.ActiveUser); !ok {
			l.state.ActiveUser = ""
		}
	}
	l.logger.InfoContext(ctx, "Ledger loaded",
		"users", len(l.state.Users),
		"transactions", len(l.state.Transactions),
		"emis", len(l.state.EMIs))
	return l
}

// ActiveUser returns the logged-in username, empty when nobody is.
func (l *Ledger) ActiveUser() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.ActiveUser
}

// Snapshot returns a deep copy of the whole state.
func (l *Ledger) Snapshot() core.State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Clone()
}

// Signup registers a user. Usernames are unique and case-sensitive.
func (l *Ledger) Signup(ctx context.Context, in SignupInput) error {
	if err := l.validateInput(in); err != nil {
		return err
	}
	username := strings.TrimSpace(in.Username)
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), l.hashCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.state.FindUser(username); exists {
		return core.NewValidationError("username", core.ErrUserExists)
	}
	l.state.Users = append(l.state.Users, core.User{
		Username:     username,
		PasswordHash: string(hash),
		Biometric:    in.Biometric,
	})
	l.logger.InfoContext(ctx, "User registered", applog.FieldUser, username)
	return l.records.SaveUsers(ctx, l.state.Users)
}

// Login makes the user active. Unknown users and wrong passwords fail the
// same way.
func (l *Ledger) Login(ctx context.Context, in LoginInput) error {
	if err := l.validateInput(in); err != nil {
		return err
	}
	username := strings.TrimSpace(in.Username)

	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.state.FindUser(username)
	if !ok || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)) != nil {
		return &core.NotFoundError{What: "credentials"}
	}
	return l.activate(ctx, username)
}

// BiometricLogin activates a user that enabled biometric sign-in. The
// platform authenticator has already verified the person.
func (l *Ledger) BiometricLogin(ctx context.Context, username string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.state.FindUser(strings.TrimSpace(username))
	if !ok || !u.Biometric {
		return &core.NotFoundError{What: "credentials"}
	}
	return l.activate(ctx, u.Username)
}

func (l *Ledger) activate(ctx context.Context, username string) error {
	l.state.ActiveUser = username
	l.logger.InfoContext(ctx, "User logged in", applog.FieldUser, username)
	return l.records.SaveActiveUser(ctx, username)
}

func (l *Ledger) Logout(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.ActiveUser == "" {
		return nil
	}
	l.state.ActiveUser = ""
	return l.records.SaveActiveUser(ctx, "")
}

// ChangePassword replaces the active user's credential.
func (l *Ledger) ChangePassword(ctx context.Context, in ChangePasswordInput) error {
	if err := l.validateInput(in); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	user, err := l.requireUser()
	if err != nil {
		return err
	}
	i := slices.IndexFunc(l.state.Users, func(u core.User) bool { return u.Username == user })
	if i < 0 || bcrypt.CompareHashAndPassword([]byte(l.state.Users[i].PasswordHash), []byte(in.Current)) != nil {
		return &core.NotFoundError{What: "credentials"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.New), l.hashCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	l.state.Users[i].PasswordHash = string(hash)
	return l.records.SaveUsers(ctx, l.state.Users)
}

// SetSalary records the salary of a month for the active user; the last
// write wins.
func (l *Ledger) SetSalary(ctx context.Context, in SalaryInput) error {
	if err := l.validateInput(in); err != nil {
		return err
	}
	p := core.Period(in.Period)

	l.mu.Lock()
	defer l.mu.Unlock()
	user, err := l.requireUser()
	if err != nil {
		return err
	}
	if l.state.Salaries == nil {
		l.state.Salaries = core.SalaryBook{}
	}
	l.state.Salaries.Set(user, p, in.Amount)
	err = l.records.SaveSalaries(ctx, l.state.Salaries)
	l.changed(ctx, user, KindSalary, p)
	return err
}

// AddTransaction records a manual expense.
func (l *Ledger) AddTransaction(ctx context.Context, in TransactionInput) (core.Transaction, error) {
	if err := l.validateInput(in); err != nil {
		return core.Transaction{}, err
	}
	day, _ := core.ParseDate(in.Date)
	desc := strings.TrimSpace(in.Description)
	category := in.Category
	if category == "" {
		category = core.Classify(desc)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	user, err := l.requireUser()
	if err != nil {
		return core.Transaction{}, err
	}
	tx := core.Transaction{
		ID:          l.newID(),
		Username:    user,
		Date:        day.Format(core.DateLayout),
		Description: desc,
		Category:    category,
		Amount:      in.Amount,
		Account:     strings.TrimSpace(in.Account),
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	l.state.Transactions = append(l.state.Transactions, tx)
	err = l.records.SaveTransactions(ctx, l.state.Transactions)
	l.changed(ctx, user, KindTransactionAdded, tx.Period())
	return tx, err
}

// DeleteTransaction removes one of the active user's transactions.
func (l *Ledger) DeleteTransaction(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	user, err := l.requireUser()
	if err != nil {
		return err
	}
	i := slices.IndexFunc(l.state.Transactions, func(t core.Transaction) bool {
		return t.ID == id && t.Username == user
	})
	if i < 0 {
		return &core.NotFoundError{What: "transaction", ID: id}
	}
	p := l.state.Transactions[i].Period()
	l.state.Transactions = slices.Delete(l.state.Transactions, i, i+1)
	err = l.records.SaveTransactions(ctx, l.state.Transactions)
	l.changed(ctx, user, KindTransactionDeleted, p)
	return err
}

// AddEMI records a new active EMI.
func (l *Ledger) AddEMI(ctx context.Context, in EMIInput) (core.EMIPlan, error) {
	if err := l.validateInput(in); err != nil {
		return core.EMIPlan{}, err
	}
	start, _ := core.ParseDate(in.StartDate)
	end := ""
	if d, ok := core.ParseDate(in.EndDate); ok {
		end = d.Format(core.DateLayout)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	user, err := l.requireUser()
	if err != nil {
		return core.EMIPlan{}, err
	}
	e := core.EMIPlan{
		ID:         l.newID(),
		Username:   user,
		Lender:     strings.TrimSpace(in.Lender),
		Purpose:    strings.TrimSpace(in.Purpose),
		MonthlyEMI: in.MonthlyEMI,
		DueDay:     in.DueDay,
		StartDate:  start.Format(core.DateLayout),
		EndDate:    end,
		Status:     core.EMIActive,
	}
	if err := e.Validate(); err != nil {
		return core.EMIPlan{}, err
	}
	l.state.EMIs = append(l.state.EMIs, e)
	err = l.records.SaveEMIs(ctx, l.state.EMIs)
	l.changed(ctx, user, KindEMIAdded)
	return e, err
}

// CloseEMI moves an active EMI to closed. Its dates are kept, so it still
// counts toward past months in range reports.
func (l *Ledger) CloseEMI(ctx context.Context, id string) (core.EMIPlan, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	user, err := l.requireUser()
	if err != nil {
		return core.EMIPlan{}, err
	}
	i := slices.IndexFunc(l.state.EMIs, func(e core.EMIPlan) bool {
		return e.ID == id && e.Username == user
	})
	if i < 0 {
		return core.EMIPlan{}, &core.NotFoundError{What: "emi", ID: id}
	}
	if !l.state.EMIs[i].IsActive() {
		return core.EMIPlan{}, core.NewValidationError("status", core.ErrEMIClosed)
	}
	l.state.EMIs[i].Status = core.EMIClosed
	err = l.records.SaveEMIs(ctx, l.state.EMIs)
	l.changed(ctx, user, KindEMIClosed)
	return l.state.EMIs[i], err
}

// ImportCSV parses a statement and appends every valid row as one batch.
// Either all parsed rows are added or none are.
func (l *Ledger) ImportCSV(ctx context.Context, r io.Reader, in ImportInput) (csvio.ImportResult, error) {
	if err := l.validateInput(in); err != nil {
		return csvio.ImportResult{}, err
	}
	user := l.ActiveUser()
	if user == "" {
		return csvio.ImportResult{}, core.ErrNoActiveUser
	}

	res, err := csvio.Parse(r, csvio.ImportOptions{
		Username: user,
		Source:   in.Source,
		Note:     strings.TrimSpace(in.Note),
		NewID:    l.newID,
	})
	if err != nil {
		return res, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.ActiveUser != user {
		return csvio.ImportResult{}, core.ErrNoActiveUser
	}
	l.state.Transactions = append(l.state.Transactions, res.Transactions...)

	var periods []core.Period
	for _, t := range res.Transactions {
		if p := t.Period(); !slices.Contains(periods, p) {
			periods = append(periods, p)
		}
	}
	slices.Sort(periods)

	l.logger.InfoContext(ctx, "Statement imported",
		applog.FieldOperation, applog.OpImport,
		applog.FieldUser, user,
		applog.FieldImported, len(res.Transactions),
		applog.FieldSkipped, res.Skipped)
	err = l.records.SaveTransactions(ctx, l.state.Transactions)
	l.changed(ctx, user, KindImport, periods...)
	return res, err
}

// Summary is the month snapshot of the active user.
func (l *Ledger) Summary(period string) (engine.Snapshot, error) {
	p, err := parsePeriod("period", period)
	if err != nil {
		return engine.Snapshot{}, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	user, err := l.requireUser()
	if err != nil {
		return engine.Snapshot{}, err
	}
	return engine.MonthSnapshot(l.state, user, p), nil
}

// Series is the rolling series ending at period. months <= 0 uses the
// configured default.
func (l *Ledger) Series(period string, months int) ([]engine.Snapshot, error) {
	p, err := parsePeriod("period", period)
	if err != nil {
		return nil, err
	}
	if months <= 0 {
		months = l.months
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	user, err := l.requireUser()
	if err != nil {
		return nil, err
	}
	return engine.RollingSeries(l.state, user, p, months), nil
}

// Report is the range report. Unparseable or reversed bounds give an empty
// report rather than an error.
func (l *Ledger) Report(from, to string) ([]engine.Snapshot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	user, err := l.requireUser()
	if err != nil {
		return nil, err
	}
	return engine.RangeReport(l.state, user, from, to), nil
}

func (l *Ledger) Year(year int) (engine.YearTotals, error) {
	if year < 1 || year > 9999 {
		return engine.YearTotals{}, core.NewValidationError("year", core.ErrInvalidPeriod)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	user, err := l.requireUser()
	if err != nil {
		return engine.YearTotals{}, err
	}
	return engine.YearSummary(l.state, user, year), nil
}

// Categories totals spending per category over the given periods.
func (l *Ledger) Categories(periods ...string) ([]engine.CategoryAmount, error) {
	ps := make([]core.Period, 0, len(periods))
	for _, s := range periods {
		p, err := parsePeriod("period", s)
		if err != nil {
			return nil, err
		}
		ps = append(ps, p)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	user, err := l.requireUser()
	if err != nil {
		return nil, err
	}
	return engine.CategoryTotals(l.state, user, ps...), nil
}

// Transactions lists the active user's transactions, newest first. An empty
// period lists all of them.
func (l *Ledger) Transactions(period string) ([]core.Transaction, error) {
	p := core.InvalidPeriod
	if period != "" {
		var err error
		if p, err = parsePeriod("period", period); err != nil {
			return nil, err
		}
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	user, err := l.requireUser()
	if err != nil {
		return nil, err
	}
	return engine.TransactionsIn(l.state, user, p), nil
}

// EMIs lists the active user's EMIs in creation order.
func (l *Ledger) EMIs() ([]core.EMIPlan, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	user, err := l.requireUser()
	if err != nil {
		return nil, err
	}
	out := []core.EMIPlan{}
	for _, e := range l.state.EMIs {
		if e.Username == user {
			out = append(out, e)
		}
	}
	return out, nil
}

// UpcomingDues lists the next instalment of each active EMI, soonest first.
func (l *Ledger) UpcomingDues() ([]Due, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	user, err := l.requireUser()
	if err != nil {
		return nil, err
	}
	return upcomingDues(l.state.EMIs, user, l.now()), nil
}

// ExportCSV writes the active user's transactions of period in stored order.
func (l *Ledger) ExportCSV(w io.Writer, period string) error {
	p, err := parsePeriod("period", period)
	if err != nil {
		return err
	}
	l.mu.RLock()
	txs, err := l.exportRows(p)
	l.mu.RUnlock()
	if err != nil {
		return err
	}
	return csvio.Export(w, txs)
}

func (l *Ledger) exportRows(p core.Period) ([]core.Transaction, error) {
	user, err := l.requireUser()
	if err != nil {
		return nil, err
	}
	return engine.TransactionsForExport(l.state, user, p), nil
}

// CurrentPeriod is the period of the ledger clock.
func (l *Ledger) CurrentPeriod() core.Period {
	return core.CurrentPeriodAt(l.now)
}

func (l *Ledger) requireUser() (string, error) {
	if l.state.ActiveUser == "" {
		return "", core.ErrNoActiveUser
	}
	return l.state.ActiveUser, nil
}

// changed notifies listeners. It runs with the write lock held, which keeps
// notifications in command order.
func (l *Ledger) changed(ctx context.Context, user, kind string, periods ...core.Period) {
	if l.notifier == nil {
		return
	}
	l.notifier.LedgerChanged(ctx, Change{
		User:      user,
		Kind:      kind,
		Periods:   periods,
		Timestamp: l.now().UTC(),
	})
}

func parsePeriod(field, s string) (core.Period, error) {
	p := core.ParsePeriod(s)
	if p == core.InvalidPeriod {
		return p, core.NewValidationError(field, core.ErrInvalidPeriod)
	}
	return p, nil
}

// IsWarning reports whether err only signals a failed save after the change
// was applied.
func IsWarning(err error) bool {
	var se *core.StorageError
	return errors.As(err, &se)
}
