// Package pricer provides current asset prices in the account currency.
package pricer

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/papertrade/internal/market"
)

// ErrPriceUnavailable is returned when a source has no price for an asset.
var ErrPriceUnavailable = errors.New("price unavailable")

type Pricer interface {
	GetPrice(ctx context.Context, assetID string) (decimal.Decimal, error)
}

// quoteResolver maps asset ids to exchange pairs against a quote currency.
type quoteResolver struct {
	catalogue *market.Catalogue
	quote     string
}

func newQuoteResolver(catalogue *market.Catalogue, quote string) quoteResolver {
	if catalogue == nil {
		catalogue = market.Default()
	}
	if quote == "" {
		quote = "USDT"
	}
	return quoteResolver{catalogue: catalogue, quote: quote}
}

func (r quoteResolver) pair(assetID string) market.Pair {
	return r.catalogue.Pair(assetID, r.quote)
}

// pegged reports whether the asset trades at 1 against the account currency.
func (r quoteResolver) pegged(assetID string) bool {
	return r.catalogue.IsStable(assetID, r.quote)
}

func validPrice(price decimal.Decimal, pair market.Pair) (decimal.Decimal, error) {
	if !price.IsPositive() {
		return decimal.Zero, errors.Wrapf(ErrPriceUnavailable, "non-positive price %s for %s", price, pair)
	}
	return price, nil
}
