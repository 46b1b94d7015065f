//go:build integration

package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/papertrade/internal/domain"
)

// TestStore_Integration runs against a live PostgreSQL.
// To run this test, use: PAPERTRADE_POSTGRES_DSN=... go test -tags=integration ./internal/storage/postgres/
func TestStore_Integration(t *testing.T) {
	dsn := os.Getenv("PAPERTRADE_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PAPERTRADE_POSTGRES_DSN is not set")
	}

	ctx := context.Background()
	s, err := Open(ctx, dsn, nil)
	require.NoError(t, err)
	defer s.Close()

	accountID := fmt.Sprintf("it-%d", time.Now().UnixNano())

	acc, err := s.Load(ctx, accountID)
	require.NoError(t, err)
	assert.Nil(t, acc)

	account := domain.NewAccount(accountID, decimal.NewFromInt(10000))
	tx, err := account.Buy("bitcoin", decimal.RequireFromString("0.1"), decimal.NewFromInt(60000))
	require.NoError(t, err)
	account.Version++
	tx.ID = accountID + "-1"
	tx.Timestamp = time.Now().UTC()
	tx.Status = domain.StatusCompleted
	require.NoError(t, s.Commit(ctx, *account, tx))

	tx, err = account.Sell("bitcoin", decimal.RequireFromString("0.1"), decimal.NewFromInt(61000))
	require.NoError(t, err)
	account.Version++
	tx.ID = accountID + "-2"
	tx.Timestamp = time.Now().UTC().Add(time.Second)
	tx.Status = domain.StatusCompleted
	require.NoError(t, s.Commit(ctx, *account, tx))

	loaded, err := s.Load(ctx, accountID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, loaded.Balance.Equal(decimal.NewFromInt(10100)), loaded.Balance.String())
	assert.Empty(t, loaded.Holdings)
	assert.Equal(t, int64(2), loaded.Version)

	// a lost acknowledgement: the same transaction again changes nothing
	require.NoError(t, s.Commit(ctx, *account, tx))

	// a writer still at version 1 is rejected
	stale := loaded.Clone()
	stale.Version = 2
	stale.Balance = decimal.NewFromInt(1)
	err = s.Commit(ctx, *stale, domain.Transaction{ID: accountID + "-stale", Type: domain.TransactionWithdraw, Timestamp: time.Now()})
	assert.ErrorIs(t, err, domain.ErrConflict)

	txs, err := s.Transactions(ctx, accountID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, domain.TransactionBuy, txs[0].Type)
	assert.Equal(t, domain.TransactionSell, txs[1].Type)
	assert.True(t, txs[1].TotalValue.Equal(decimal.NewFromInt(6100)))

	// the CHECK constraint rejects a negative balance
	broken := *loaded.Clone()
	broken.Balance = decimal.NewFromInt(-1)
	broken.Version++
	err = s.Commit(ctx, broken, domain.Transaction{ID: accountID + "-3", Type: domain.TransactionWithdraw, Timestamp: time.Now()})
	assert.Error(t, err)
}
