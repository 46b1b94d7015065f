package ledger

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/papertrade/internal/domain"
	"go.uber.org/zap"
)

// ErrNoPricer is returned by Quote when the ledger has no price source.
var ErrNoPricer = errors.New("no price source configured")

// Quote returns the current market price of assetID.
func (l *Ledger) Quote(ctx context.Context, assetID string) (decimal.Decimal, error) {
	if l.pricer == nil {
		return decimal.Zero, ErrNoPricer
	}
	price, err := l.pricer.GetPrice(ctx, assetID)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "quote %s", assetID)
	}
	if !price.IsPositive() {
		return decimal.Zero, errors.Errorf("quote %s: non-positive price %s", assetID, price.String())
	}
	return price, nil
}

// Valuate values the committed account at current prices. Assets whose
// price cannot be fetched are valued at their average price.
func (l *Ledger) Valuate(ctx context.Context) domain.Valuation {
	return l.ValuateAccount(ctx, l.Account())
}

// ValuateAccount values account, typically a copy taken with Account, so
// callers can report the state and its valuation consistently.
func (l *Ledger) ValuateAccount(ctx context.Context, account *domain.Account) domain.Valuation {
	prices := l.fetchPrices(ctx, account)

	return account.Valuate(func(assetID string) (decimal.Decimal, bool) {
		p, ok := prices[assetID]
		return p, ok
	})
}

// TotalValue returns balance plus the market value of all holdings.
func (l *Ledger) TotalValue(ctx context.Context) decimal.Decimal {
	return l.Valuate(ctx).Total
}

func (l *Ledger) fetchPrices(ctx context.Context, account *domain.Account) map[string]decimal.Decimal {
	prices := make(map[string]decimal.Decimal, len(account.Holdings))
	if l.pricer == nil {
		return prices
	}
	for assetID := range account.Holdings {
		price, err := l.Quote(ctx, assetID)
		if err != nil {
			l.logger.Warn("price unavailable, valuing at cost basis",
				zap.String("asset", assetID),
				zap.Error(err))
			continue
		}
		prices[assetID] = price
	}
	return prices
}
