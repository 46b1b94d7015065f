package pricer

import (
	"context"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/papertrade/internal/market"
)

type BybitPricer struct {
	client *bybit.Client
	quoteResolver
}

func NewBybitPricer(client *bybit.Client, catalogue *market.Catalogue, quote string) *BybitPricer {
	return &BybitPricer{client: client, quoteResolver: newQuoteResolver(catalogue, quote)}
}

// GetPrice reads the last traded price from the V5 spot tickers.
func (p *BybitPricer) GetPrice(ctx context.Context, assetID string) (decimal.Decimal, error) {
	if p.pegged(assetID) {
		return decimal.NewFromInt(1), nil
	}
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}

	pair := p.pair(assetID)
	symbol := bybit.SymbolV5(pair.Symbol())

	result, err := p.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
		Category: "spot",
		Symbol:   &symbol,
	})
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "bybit price for %s", pair)
	}

	if result.Result.Spot == nil || len(result.Result.Spot.List) == 0 {
		return decimal.Zero, errors.Wrapf(ErrPriceUnavailable, "bybit API returned empty prices for %s", pair)
	}

	price, err := decimal.NewFromString(result.Result.Spot.List[0].LastPrice)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse bybit price for %s", pair)
	}
	return validPrice(price, pair)
}
