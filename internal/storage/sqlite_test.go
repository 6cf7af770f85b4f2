package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
)

func openTestKV(t *testing.T) *SQLiteKV {
	t.Helper()
	kv, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "fintrack.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

func TestSQLiteKVSetGet(t *testing.T) {
	kv := openTestKV(t)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "k", []byte("old")))
	require.NoError(t, kv.Set(ctx, "k", []byte("new")))

	v, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), v)
}

func TestSQLiteKVGetMissing(t *testing.T) {
	kv := openTestKV(t)

	v, err := kv.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestSQLiteKVDeleteIsIdempotent(t *testing.T) {
	kv := openTestKV(t)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "x", []byte("1")))
	require.NoError(t, kv.Delete(ctx, "x"))
	require.NoError(t, kv.Delete(ctx, "x"))

	v, err := kv.Get(ctx, "x")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestSQLiteKVKeys(t *testing.T) {
	kv := openTestKV(t)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, KeyUsers, []byte("[]")))
	require.NoError(t, kv.Set(ctx, KeyEMIs, []byte("[]")))

	keys, err := kv.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{KeyEMIs, KeyUsers}, keys)
}

func TestSQLiteKVMigrationsAreRepeatable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fintrack.db")

	first, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, first.Set(context.Background(), "k", []byte("v")))
	require.NoError(t, first.Close())

	second, err := OpenSQLite(path)
	require.NoError(t, err)
	defer second.Close()

	v, err := second.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
}

func TestSQLiteKVBacksRecords(t *testing.T) {
	ctx := context.Background()
	r := NewRecords(openTestKV(t), nil)

	book := core.SalaryBook{}
	book.Set("asha", "2024-03", core.Cents(123456))
	require.NoError(t, r.SaveSalaries(ctx, book))
	require.NoError(t, r.SaveActiveUser(ctx, "asha"))

	assert.Equal(t, book, r.LoadSalaries(ctx))
	assert.Equal(t, "asha", r.LoadActiveUser(ctx))
}

func newMockKV(t *testing.T) (*SQLiteKV, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLiteKV(db), mock
}

func TestSQLiteKVErrorsAreWrapped(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	t.Run("get", func(t *testing.T) {
		kv, mock := newMockKV(t)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM records WHERE key = ?`)).
			WithArgs("k").WillReturnError(boom)

		_, err := kv.Get(ctx, "k")
		require.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "get record k")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("set", func(t *testing.T) {
		kv, mock := newMockKV(t)
		mock.ExpectExec(`INSERT INTO records`).
			WithArgs("k", []byte("v")).WillReturnError(boom)

		err := kv.Set(ctx, "k", []byte("v"))
		require.ErrorIs(t, err, boom)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("delete", func(t *testing.T) {
		kv, mock := newMockKV(t)
		mock.ExpectExec(`DELETE FROM records`).WithArgs("k").WillReturnError(boom)

		require.ErrorIs(t, kv.Delete(ctx, "k"), boom)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("keys scan", func(t *testing.T) {
		kv, mock := newMockKV(t)
		mock.ExpectQuery(`SELECT key FROM records`).
			WillReturnRows(sqlmock.NewRows([]string{"key"}).AddRow("a").RowError(0, boom))

		_, err := kv.Keys(ctx)
		require.ErrorIs(t, err, boom)
	})

	t.Run("no rows is not an error", func(t *testing.T) {
		kv, mock := newMockKV(t)
		mock.ExpectQuery(`SELECT value FROM records`).WithArgs("k").WillReturnError(sql.ErrNoRows)

		v, err := kv.Get(ctx, "k")
		require.NoError(t, err)
		assert.Nil(t, v)
	})
}

func TestRecordsSurfaceSQLiteFailure(t *testing.T) {
	kv, mock := newMockKV(t)
	mock.ExpectExec(`INSERT INTO records`).WillReturnError(errors.New("readonly"))

	err := NewRecords(kv, nil).SaveUsers(context.Background(), []core.User{{Username: "a"}})
	assert.True(t, core.IsStorage(err))
}
