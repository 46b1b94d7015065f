package pricer

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/papertrade/internal/market"
)

// StaticPricer serves catalogue reference prices, overridden per asset.
// It never touches the network and is the default simulator source.
type StaticPricer struct {
	catalogue *market.Catalogue

	mu        sync.RWMutex
	overrides map[string]decimal.Decimal
}

func NewStaticPricer(catalogue *market.Catalogue, overrides map[string]decimal.Decimal) *StaticPricer {
	if catalogue == nil {
		catalogue = market.Default()
	}
	p := &StaticPricer{catalogue: catalogue, overrides: make(map[string]decimal.Decimal, len(overrides))}
	for id, price := range overrides {
		p.overrides[catalogue.Canonical(id)] = price
	}
	return p
}

// Set overrides the price of an asset.
func (p *StaticPricer) Set(assetID string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.overrides[p.catalogue.Canonical(assetID)] = price
}

func (p *StaticPricer) GetPrice(ctx context.Context, assetID string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}

	id := p.catalogue.Canonical(assetID)

	p.mu.RLock()
	price, ok := p.overrides[id]
	p.mu.RUnlock()
	if ok {
		return price, nil
	}

	asset, ok := p.catalogue.Lookup(id)
	if !ok || !asset.Price.IsPositive() {
		return decimal.Zero, errors.Wrapf(ErrPriceUnavailable, "no reference price for %s", assetID)
	}
	return asset.Price, nil
}
