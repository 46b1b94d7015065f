package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/papertrade/internal/domain"
)

func TestStore_CommitAndLoad(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := New(dir)
	require.NoError(t, err)

	acc, err := s.Load(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Nil(t, acc)

	account := domain.NewAccount("user@example.com", decimal.NewFromInt(1000))
	tx, err := account.Buy("cardano", decimal.NewFromInt(100), decimal.RequireFromString("0.47"))
	require.NoError(t, err)
	account.Version++
	tx.ID = "t1"
	tx.Status = domain.StatusCompleted
	require.NoError(t, s.Commit(ctx, *account, tx))

	tx, err = account.WithdrawFunds(decimal.NewFromInt(53))
	require.NoError(t, err)
	account.Version++
	tx.ID = "t2"
	require.NoError(t, s.Commit(ctx, *account, tx))

	_, err = os.Stat(filepath.Join(dir, "user_example_com.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "user_example_com.json.tmp"))
	assert.True(t, os.IsNotExist(err))

	// a fresh store reads what the first one wrote
	s2, err := New(dir)
	require.NoError(t, err)

	loaded, err := s2.Load(ctx, "user@example.com")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, loaded.Balance.Equal(decimal.NewFromInt(900)))
	assert.Equal(t, int64(2), loaded.Version)
	h, ok := loaded.Holding("cardano")
	require.True(t, ok)
	assert.True(t, h.AveragePrice.Equal(decimal.RequireFromString("0.47")))

	txs, err := s2.Transactions(ctx, "user@example.com")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "t1", txs[0].ID)
	assert.Equal(t, domain.TransactionWithdraw, txs[1].Type)
}

func TestStore_IDCollision(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	acc := domain.NewAccount("Alice", decimal.NewFromInt(1))
	acc.Version = 1
	require.NoError(t, s.Commit(ctx, *acc, domain.Transaction{ID: "x"}))

	_, err = s.Load(ctx, "alice")
	assert.Error(t, err)
}

func TestStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bob.json"), []byte("{not json"), 0o644))
	_, err = s.Load(context.Background(), "bob")
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bob.json"), nil, 0o644))
	acc, err := s.Load(context.Background(), "bob")
	require.NoError(t, err)
	assert.Nil(t, acc)
}

func TestStore_StaleWriterIsRejected(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	// two stores on one dir stand in for two processes
	cli, err := New(dir)
	require.NoError(t, err)
	server, err := New(dir)
	require.NoError(t, err)

	opened := domain.NewAccount("alice", decimal.NewFromInt(10000))
	opened.Version = 1
	require.NoError(t, cli.Commit(ctx, *opened, domain.Transaction{ID: "open", Type: domain.TransactionDeposit}))

	serverView, err := server.Load(ctx, "alice")
	require.NoError(t, err)

	next := opened.Clone()
	_, err = next.AddFunds(decimal.NewFromInt(5000))
	require.NoError(t, err)
	next.Version++
	require.NoError(t, cli.Commit(ctx, *next, domain.Transaction{ID: "d1", Type: domain.TransactionDeposit}))

	_, err = serverView.WithdrawFunds(decimal.NewFromInt(1000))
	require.NoError(t, err)
	serverView.Version++
	err = server.Commit(ctx, *serverView, domain.Transaction{ID: "w1", Type: domain.TransactionWithdraw})
	assert.ErrorIs(t, err, domain.ErrConflict)

	stored, err := server.Load(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, stored.Balance.Equal(decimal.NewFromInt(15000)))
	txs, err := server.Transactions(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestStore_RepeatedTransactionIsAcknowledged(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	acc := domain.NewAccount("bob", decimal.NewFromInt(10))
	acc.Version = 1
	tx := domain.Transaction{ID: "open", Type: domain.TransactionDeposit}
	require.NoError(t, s.Commit(ctx, *acc, tx))
	require.NoError(t, s.Commit(ctx, *acc, tx))

	txs, err := s.Transactions(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestSanitizeScope(t *testing.T) {
	assert.Equal(t, "user_example_com", sanitizeScope(" User@Example.com "))
	assert.Equal(t, "a_b", sanitizeScope("__a--b__"))
	assert.Equal(t, "", sanitizeScope("   "))
}
