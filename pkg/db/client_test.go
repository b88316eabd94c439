package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrowpay-backend/pkg/config"
)

type ledgerRow struct {
	ID   int
	Memo string
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&ledgerRow{}))
	return &Client{conn: conn}
}

func countRows(t *testing.T, c *Client) int64 {
	t.Helper()
	var n int64
	require.NoError(t, c.DB().Model(&ledgerRow{}).Count(&n).Error)
	return n
}

func TestWithTxCommitsAndRollsBack(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&ledgerRow{Memo: "hold"}).Error
	}))
	assert.EqualValues(t, 1, countRows(t, client))

	boom := errors.New("insufficient held balance")
	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		require.NoError(t, tx.Create(&ledgerRow{Memo: "release"}).Error)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.EqualValues(t, 1, countRows(t, client))
}

func TestWithTxReplaysSerializationFailure(t *testing.T) {
	client := newTestClient(t)
	calls := 0

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		calls++
		if err := tx.Create(&ledgerRow{Memo: fmt.Sprint("attempt-", calls)}).Error; err != nil {
			return err
		}
		if calls == 1 {
			return &pgconn.PgError{Code: pgSerializationFailure}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.EqualValues(t, 1, countRows(t, client), "first attempt rolled back")
}

func TestWithTxGivesUpAfterAttempts(t *testing.T) {
	client := newTestClient(t)
	calls := 0

	err := client.WithTx(context.Background(), func(*gorm.DB) error {
		calls++
		return &pgconn.PgError{Code: pgDeadlockDetected}
	})
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, pgDeadlockDetected, pgErr.Code)
	assert.Equal(t, txAttempts, calls)
}

func TestWithTxRethrowsPanic(t *testing.T) {
	client := newTestClient(t)
	assert.Panics(t, func() {
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			panic("ledger invariant broken")
		})
	})
}

func TestPing(t *testing.T) {
	assert.NoError(t, newTestClient(t).Ping(context.Background()))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, IsUniqueViolation(nil, ""))

	sqliteErr := errors.New("UNIQUE constraint failed: payouts.payout_reference")
	assert.True(t, IsUniqueViolation(sqliteErr, ""))
	assert.True(t, IsUniqueViolation(sqliteErr, "payout_reference"))
	assert.False(t, IsUniqueViolation(sqliteErr, "order_id"))

	pgErr := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "ux_escrow_accounts_order_id"})
	assert.True(t, IsUniqueViolation(pgErr, "ux_escrow_accounts_order_id"))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}, ""))
	assert.False(t, IsUniqueViolation(errors.New("connection reset"), ""))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"})))
	assert.True(t, IsTransient(&pgconn.PgError{Code: "40P01"}))
	assert.True(t, IsTransient(errors.New("database is locked")))
	assert.False(t, IsTransient(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsTransient(nil))
}

func TestDialectorFor(t *testing.T) {
	_, err := dialectorFor(config.DBConfig{Driver: "mysql", DSN: "x"})
	assert.Error(t, err)

	d, err := dialectorFor(config.DBConfig{Driver: "SQLite", DSN: "file::memory:"})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.Name())

	d, err = dialectorFor(config.DBConfig{DSN: "postgres://localhost/escrowpay"})
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())
}
