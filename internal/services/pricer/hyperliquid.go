package pricer

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	hyperliquid "github.com/sonirico/go-hyperliquid"
	"github.com/vadiminshakov/papertrade/internal/market"
)

// HyperliquidPricer fetches mid prices from Hyperliquid public Info API.
type HyperliquidPricer struct {
	info *hyperliquid.Info
	quoteResolver
}

func NewHyperliquidPricer(info *hyperliquid.Info, catalogue *market.Catalogue, quote string) *HyperliquidPricer {
	return &HyperliquidPricer{info: info, quoteResolver: newQuoteResolver(catalogue, quote)}
}

func (p *HyperliquidPricer) GetPrice(ctx context.Context, assetID string) (decimal.Decimal, error) {
	if p.pegged(assetID) {
		return decimal.NewFromInt(1), nil
	}
	if p.info == nil {
		return decimal.Zero, errors.New("hyperliquid info client is nil")
	}

	mids, err := p.info.AllMids(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "hyperliquid mids")
	}

	// mids are keyed by base coin (e.g., "BTC")
	pair := p.pair(assetID)
	mid, ok := mids[pair.From]
	if !ok || mid == "" {
		return decimal.Zero, errors.Wrapf(ErrPriceUnavailable, "hyperliquid API returned empty mid price for %s", pair.From)
	}

	price, err := decimal.NewFromString(mid)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse hyperliquid mid for %s", pair.From)
	}
	return validPrice(price, pair)
}
