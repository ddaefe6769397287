package storage

import (
	"bytes"
	"context"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirk1998/car-rental-client/internal/security"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, ok, err := s.Get(ctx, KeyUserToken)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, KeyUserToken, "abc123"))
	v, ok, err := s.Get(ctx, KeyUserToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc123", v)

	require.NoError(t, s.Remove(ctx, KeyUserToken))
	require.NoError(t, s.Remove(ctx, KeyUserToken), "removing twice is fine")
	_, ok, _ = s.Get(ctx, KeyUserToken)
	assert.False(t, ok)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, NewMemoryStore().Set(ctx, KeyUserToken, "x"), context.Canceled)
}

func TestSQLStore_Plain(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	s := NewSQLStore(db, nil)

	mock.ExpectExec("INSERT INTO kv_store").
		WithArgs(KeyUserToken, "abc123", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT value FROM kv_store").
		WithArgs(KeyUserToken).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("abc123"))
	mock.ExpectExec("DELETE FROM kv_store").
		WithArgs(KeyUserToken).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT value FROM kv_store").
		WithArgs(KeyUserToken).
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	require.NoError(t, s.Set(ctx, KeyUserToken, "abc123"))

	v, ok, err := s.Get(ctx, KeyUserToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc123", v)

	require.NoError(t, s.Remove(ctx, KeyUserToken))

	_, ok, err = s.Get(ctx, KeyUserToken)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// sealedArg captures what the store wrote so the read can return it.
type sealedArg struct{ value string }

func (a *sealedArg) Match(v driver.Value) bool {
	s, ok := v.(string)
	if ok {
		a.value = s
	}
	return ok && s != "abc123"
}

func TestSQLStore_Encrypted(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	fe, err := security.NewFieldEncryptor(bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)

	ctx := context.Background()
	s := NewSQLStore(db, fe)

	captured := &sealedArg{}
	mock.ExpectExec("INSERT INTO kv_store").
		WithArgs(KeyUserToken, captured, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, s.Set(ctx, KeyUserToken, "abc123"))

	mock.ExpectQuery("SELECT value FROM kv_store").
		WithArgs(KeyUserToken).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(captured.value))

	v, ok, err := s.Get(ctx, KeyUserToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc123", v)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_Errors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewSQLStore(db, nil)
	mock.ExpectExec("INSERT INTO kv_store").WillReturnError(errors.New("database is locked"))

	err = s.Set(context.Background(), KeyUserData, "{}")
	assert.ErrorContains(t, err, "failed to write userData")
}
