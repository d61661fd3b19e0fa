package db

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalletGetByCouncil(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "council_id", "exchange", "api_key", "secret_key", "contract_address", "created_at",
	}).AddRow(int64(7), int64(42), "binance", "key", "secret", (*string)(nil), now)

	mock.ExpectQuery(`SELECT id, council_id, exchange`).
		WithArgs(int64(42)).
		WillReturnRows(rows)

	repo := NewWalletRepo(mock)
	w, err := repo.GetByCouncil(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, int64(7), w.ID)
	assert.Equal(t, "binance", w.Exchange)
	assert.Nil(t, w.ContractAddress)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletGetByCouncilMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT id, council_id, exchange`).
		WithArgs(int64(99)).
		WillReturnError(errNoRowsForTest())

	repo := NewWalletRepo(mock)
	_, err = repo.GetByCouncil(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWalletCreateDuplicateSurfacesUniqueViolation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "wallets_council_id_key"}
	mock.ExpectQuery(`INSERT INTO wallets`).
		WithArgs(int64(42), "binance", "key", "secret", (*string)(nil), pgxmock.AnyArg()).
		WillReturnError(pgErr)

	repo := NewWalletRepo(mock)
	err = repo.Create(context.Background(), &Wallet{
		CouncilID: 42,
		Exchange:  "binance",
		APIKey:    "key",
		SecretKey: "secret",
	})
	assert.ErrorIs(t, err, ErrUniqueViolation)
}

func TestWalletDeleteMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`DELETE FROM wallets`).
		WithArgs(int64(5)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	repo := NewWalletRepo(mock)
	err = repo.Delete(context.Background(), 5)
	assert.ErrorIs(t, err, ErrNotFound)
}
