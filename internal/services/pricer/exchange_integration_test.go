//go:build integration

package pricer

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/papertrade/internal/clients"
	"github.com/vadiminshakov/papertrade/internal/market"
)

// TestExchangePricers_Integration calls the real public market APIs.
// To run this test, use: go test -tags=integration -v ./...
func TestExchangePricers_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	catalogue := market.Default()
	hl, err := clients.NewHyperliquidClient("", "https://api.hyperliquid.xyz")
	require.NoError(t, err)

	pricers := map[string]Pricer{
		"binance":     NewBinancePricer(clients.NewBinanceClient(clients.Credentials{}), catalogue, "USDT"),
		"bybit":       NewBybitPricer(clients.NewBybitClient(clients.Credentials{}), catalogue, "USDT"),
		"hyperliquid": NewHyperliquidPricer(hl.Info(), catalogue, "USDT"),
	}

	for name, p := range pricers {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for _, asset := range []string{"bitcoin", "ethereum"} {
				price, err := p.GetPrice(ctx, asset)
				require.NoError(t, err)
				require.True(t, price.GreaterThan(decimal.Zero), "Expected price > 0 for %s, got %s", asset, price.String())
				t.Logf("Current %s price: %s", asset, price.String())
			}

			price, err := p.GetPrice(ctx, "INVALIDASSET")
			assert.Error(t, err, "Expected error for invalid asset")
			assert.True(t, price.IsZero(), "Expected zero price for invalid asset, got %s", price.String())
		})
	}
}
