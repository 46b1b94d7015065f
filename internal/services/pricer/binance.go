package pricer

import (
	"context"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/papertrade/internal/market"
)

// BinancePricer fetches last prices from the Binance public API
// without requiring authentication.
type BinancePricer struct {
	client *binance.Client
	quoteResolver
}

// NewBinancePricer quotes catalogue assets against quote, e.g. BTCUSDT.
func NewBinancePricer(client *binance.Client, catalogue *market.Catalogue, quote string) *BinancePricer {
	return &BinancePricer{client: client, quoteResolver: newQuoteResolver(catalogue, quote)}
}

// GetPrice fetches the current market price from Binance public API
func (p *BinancePricer) GetPrice(ctx context.Context, assetID string) (decimal.Decimal, error) {
	if p.pegged(assetID) {
		return decimal.NewFromInt(1), nil
	}

	pair := p.pair(assetID)
	prices, err := p.client.NewListPricesService().Symbol(pair.Symbol()).Do(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "binance price for %s", pair)
	}
	if len(prices) == 0 {
		return decimal.Zero, errors.Wrapf(ErrPriceUnavailable, "binance API returned empty prices for %s", pair)
	}

	price, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse binance price for %s", pair)
	}
	return validPrice(price, pair)
}
