package walstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/papertrade/internal/domain"
)

func commitBuy(t *testing.T, s *WALStore, acc *domain.Account, asset, amount, price string) domain.Transaction {
	t.Helper()
	tx, err := acc.Buy(asset, decimal.RequireFromString(amount), decimal.RequireFromString(price))
	require.NoError(t, err)
	acc.Version++
	tx.ID = asset + "-" + amount
	tx.Timestamp = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tx.Status = domain.StatusCompleted
	require.NoError(t, s.Commit(context.Background(), *acc, tx))
	return tx
}

func TestWALStore_CommitLoadAndReplay(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := New(Config{Dir: dir})
	require.NoError(t, err)

	acc, err := s.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, acc)

	alice := domain.NewAccount("alice", decimal.NewFromInt(10000))
	commitBuy(t, s, alice, "bitcoin", "0.1", "60000")
	commitBuy(t, s, alice, "ethereum", "1", "3000")

	bob := domain.NewAccount("bob", decimal.NewFromInt(100))
	commitBuy(t, s, bob, "dogecoin", "100", "0.12")

	loaded, err := s.Load(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, loaded.Balance.Equal(decimal.NewFromInt(1000)))
	assert.Len(t, loaded.Holdings, 2)
	assert.Equal(t, uint64(3), s.CurrentIndex())

	require.NoError(t, s.Close())

	// reopen and replay
	s, err = New(Config{Dir: dir})
	require.NoError(t, err)
	defer s.Close()

	loaded, err = s.Load(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, loaded.Balance.Equal(decimal.NewFromInt(1000)))
	h, ok := loaded.Holding("bitcoin")
	require.True(t, ok)
	assert.True(t, h.AveragePrice.Equal(decimal.NewFromInt(60000)))

	txs, err := s.Transactions(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "bitcoin-0.1", txs[0].ID)
	assert.Equal(t, "ethereum-1", txs[1].ID)
	assert.Equal(t, domain.StatusCompleted, txs[1].Status)

	txs, err = s.Transactions(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, txs, 1)

	txs, err = s.Transactions(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestWALStore_LoadReturnsCopy(t *testing.T) {
	s, err := New(Config{Dir: t.TempDir()})
	require.NoError(t, err)
	defer s.Close()

	acc := domain.NewAccount("alice", decimal.NewFromInt(500))
	commitBuy(t, s, acc, "solana", "1", "150")

	loaded, err := s.Load(context.Background(), "alice")
	require.NoError(t, err)
	delete(loaded.Holdings, "solana")

	again, err := s.Load(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, again.Holdings, 1)
}

func TestWALStore_CommitValidation(t *testing.T) {
	s, err := New(Config{Dir: t.TempDir()})
	require.NoError(t, err)
	defer s.Close()

	err = s.Commit(context.Background(), domain.Account{}, domain.Transaction{})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = s.Commit(ctx, *domain.NewAccount("alice", decimal.Zero), domain.Transaction{})
	assert.ErrorIs(t, err, context.Canceled)
}

func commitDeposit(t *testing.T, s *WALStore, acc *domain.Account, id string, amount int64) {
	t.Helper()
	tx, err := acc.AddFunds(decimal.NewFromInt(amount))
	require.NoError(t, err)
	acc.Version++
	tx.ID = id
	tx.Status = domain.StatusCompleted
	require.NoError(t, s.Commit(context.Background(), *acc, tx))
}

func TestWALStore_HistorySurvivesSegmentRotation(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := New(Config{Dir: dir, SegmentThreshold: 2})
	require.NoError(t, err)

	alice := domain.NewAccount("alice", decimal.NewFromInt(100000))
	commitBuy(t, s, alice, "bitcoin", "1", "60000")

	bob := domain.NewAccount("bob", decimal.Zero)
	for i := 0; i < 20; i++ {
		commitDeposit(t, s, bob, fmt.Sprintf("bob-%d", i), 10)
	}
	require.NoError(t, s.Close())

	s, err = New(Config{Dir: dir, SegmentThreshold: 2})
	require.NoError(t, err)
	defer s.Close()

	loaded, err := s.Load(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, loaded, "alice's only commit sits in the oldest segment")
	assert.True(t, loaded.Balance.Equal(decimal.NewFromInt(40000)))
	h, ok := loaded.Holding("bitcoin")
	require.True(t, ok)
	assert.True(t, h.Amount.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, int64(1), loaded.Version)

	txs, err := s.Transactions(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, txs, 1)

	txs, err = s.Transactions(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, txs, 20)
	assert.Equal(t, "bob-0", txs[0].ID)
	assert.Equal(t, "bob-19", txs[19].ID)

	loaded, err = s.Load(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, loaded.Balance.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, int64(20), loaded.Version)
	assert.Equal(t, uint64(21), s.CurrentIndex())

	// appends continue after the restored index
	commitDeposit(t, s, bob, "bob-20", 10)
	assert.Equal(t, uint64(22), s.CurrentIndex())
}

func TestWALStore_RejectsStaleVersion(t *testing.T) {
	s, err := New(Config{Dir: t.TempDir()})
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	acc := domain.NewAccount("alice", decimal.NewFromInt(1000))
	stale := acc.Clone()
	commitDeposit(t, s, acc, "d1", 500)

	// a writer that never saw d1 tries to commit its own first change
	tx, err := stale.WithdrawFunds(decimal.NewFromInt(100))
	require.NoError(t, err)
	stale.Version++
	tx.ID = "w1"
	err = s.Commit(ctx, *stale, tx)
	assert.ErrorIs(t, err, domain.ErrConflict)

	loaded, err := s.Load(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, loaded.Balance.Equal(decimal.NewFromInt(1500)))
	txs, err := s.Transactions(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, txs, 1)
	assert.Equal(t, uint64(1), s.CurrentIndex())
}

func TestWALStore_RepeatedTransactionIsAcknowledged(t *testing.T) {
	s, err := New(Config{Dir: t.TempDir()})
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	acc := domain.NewAccount("alice", decimal.NewFromInt(1000))
	tx, err := acc.AddFunds(decimal.NewFromInt(1))
	require.NoError(t, err)
	acc.Version++
	tx.ID = "d1"

	require.NoError(t, s.Commit(ctx, *acc, tx))
	require.NoError(t, s.Commit(ctx, *acc, tx))

	txs, err := s.Transactions(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, txs, 1)
	assert.Equal(t, uint64(1), s.CurrentIndex())
}

func TestWALStore_DirectoryIsLocked(t *testing.T) {
	dir := t.TempDir()

	s, err := New(Config{Dir: dir})
	require.NoError(t, err)

	_, err = New(Config{Dir: dir})
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, s.Close())

	s, err = New(Config{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestWALStore_NilStore(t *testing.T) {
	var s *WALStore
	_, err := s.Load(context.Background(), "x")
	assert.Error(t, err)
	assert.Error(t, s.Close())
	assert.Equal(t, uint64(0), s.CurrentIndex())
}
