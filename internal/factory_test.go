package internal

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/papertrade/config"
	"github.com/vadiminshakov/papertrade/internal/market"
)

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	for _, backend := range []string{config.BackendWAL, config.BackendFile} {
		t.Run(backend, func(t *testing.T) {
			store, err := NewStore(ctx, config.StorageConfig{Backend: backend, Dir: t.TempDir()}, nil)
			require.NoError(t, err)
			require.NoError(t, store.Close())
		})
	}

	_, err := NewStore(ctx, config.StorageConfig{Backend: "redis"}, nil)
	assert.Error(t, err)
}

func TestNewPricer(t *testing.T) {
	cfg := config.Default()
	cfg.Pricer.Overrides = map[string]decimal.Decimal{"btc": decimal.NewFromInt(42)}

	p, err := NewPricer(cfg, market.Default(), nil)
	require.NoError(t, err)

	price, err := p.GetPrice(context.Background(), "bitcoin")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(42)))

	cfg.Pricer.Sources = []string{"coingecko"}
	_, err = NewPricer(cfg, market.Default(), nil)
	assert.Error(t, err)
}

func TestOpenSession(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.AccountID = "alice"
	cfg.StartingBalance = decimal.NewFromInt(2000)
	cfg.Storage.Backend = config.BackendFile
	cfg.Storage.Dir = t.TempDir()

	s, err := OpenSession(ctx, cfg, nil)
	require.NoError(t, err)

	ch := s.Broadcaster.Subscribe()
	_, err = s.Ledger.Buy(ctx, "solana", decimal.NewFromInt(2), decimal.NewFromInt(150))
	require.NoError(t, err)
	snapshot := <-ch
	assert.True(t, snapshot.Balance.Equal(decimal.NewFromInt(1700)))
	require.NoError(t, s.Close())
	_, open := <-ch
	assert.False(t, open, "closing the session ends snapshot streams")

	// reopening keeps the state and does not fund the account twice
	s, err = OpenSession(ctx, cfg, nil)
	require.NoError(t, err)
	defer s.Close()
	assert.True(t, s.Ledger.Balance().Equal(decimal.NewFromInt(1700)))
	assert.True(t, s.Ledger.TotalValue(ctx).Equal(decimal.RequireFromString("1700").Add(decimal.RequireFromString("315.78"))))
}
