// Package storage persists the ledger as a handful of JSON documents in a
// key/value store.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
)

// Record keys.
const (
	KeyUsers        = "users"
	KeyActiveUser   = "active-user"
	KeySalaries     = "salary-by-period"
	KeyTransactions = "transactions"
	KeyEMIs         = "emis"
)

// KV is the backing store. Get returns (nil, nil) for a missing key.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Records reads and writes the ledger collections. Loads never fail: a
// missing, unreadable or corrupt entry yields the empty default and a warning.
// Saves wrap failures in *core.StorageError.
type Records struct {
	kv     KV
	logger *slog.Logger
}

func NewRecords(kv KV, logger *slog.Logger) *Records {
	if logger == nil {
		logger = slog.Default()
	}
	return &Records{kv: kv, logger: logger.With(applog.FieldComponent, applog.ComponentStorage)}
}

func (r *Records) LoadUsers(ctx context.Context) []core.User {
	return load(ctx, r, KeyUsers, []core.User{})
}

func (r *Records) SaveUsers(ctx context.Context, users []core.User) error {
	return r.save(ctx, KeyUsers, users)
}

func (r *Records) LoadActiveUser(ctx context.Context) string {
	return load(ctx, r, KeyActiveUser, "")
}

// SaveActiveUser stores the session user; an empty name removes the entry.
func (r *Records) SaveActiveUser(ctx context.Context, username string) error {
	if username == "" {
		if err := r.kv.Delete(ctx, KeyActiveUser); err != nil {
			return &core.StorageError{Key: KeyActiveUser, Err: err}
		}
		return nil
	}
	return r.save(ctx, KeyActiveUser, username)
}

func (r *Records) LoadSalaries(ctx context.Context) core.SalaryBook {
	book := load(ctx, r, KeySalaries, core.SalaryBook{})
	if book == nil {
		book = core.SalaryBook{}
	}
	return book
}

func (r *Records) SaveSalaries(ctx context.Context, book core.SalaryBook) error {
	return r.save(ctx, KeySalaries, book)
}

func (r *Records) LoadTransactions(ctx context.Context) []core.Transaction {
	return load(ctx, r, KeyTransactions, []core.Transaction{})
}

func (r *Records) SaveTransactions(ctx context.Context, txs []core.Transaction) error {
	return r.save(ctx, KeyTransactions, txs)
}

func (r *Records) LoadEMIs(ctx context.Context) []core.EMIPlan {
	return load(ctx, r, KeyEMIs, []core.EMIPlan{})
}

func (r *Records) SaveEMIs(ctx context.Context, emis []core.EMIPlan) error {
	return r.save(ctx, KeyEMIs, emis)
}

// LoadState reads every collection into one snapshot.
func (r *Records) LoadState(ctx context.Context) core.State {
	return core.State{
		Users:        r.LoadUsers(ctx),
		ActiveUser:   r.LoadActiveUser(ctx),
		Salaries:     r.LoadSalaries(ctx),
		Transactions: r.LoadTransactions(ctx),
		EMIs:         r.LoadEMIs(ctx),
	}
}

func load[T any](ctx context.Context, r *Records, key string, def T) T {
	raw, err := r.kv.Get(ctx, key)
	if err != nil {
		r.logger.WarnContext(ctx, "Record unreadable, using default",
			applog.FieldRecordKey, key, applog.FieldError, err)
		return def
	}
	if len(raw) == 0 {
		return def
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		r.logger.WarnContext(ctx, "Record corrupt, using default",
			applog.FieldRecordKey, key, applog.FieldError, err)
		return def
	}
	return v
}

func (r *Records) save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return &core.StorageError{Key: key, Err: fmt.Errorf("encode: %w", err)}
	}
	if err := r.kv.Set(ctx, key, raw); err != nil {
		r.logger.ErrorContext(ctx, "Record save failed",
			applog.FieldRecordKey, key, applog.FieldError, err)
		return &core.StorageError{Key: key, Err: err}
	}
	return nil
}
