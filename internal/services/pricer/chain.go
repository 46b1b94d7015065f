package pricer

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Source is a named price source of a chain.
type Source struct {
	Name   string
	Pricer Pricer
}

// ChainPricer asks its sources in order; the first price wins.
type ChainPricer struct {
	sources []Source
	logger  *zap.Logger
}

func NewChainPricer(logger *zap.Logger, sources ...Source) *ChainPricer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChainPricer{sources: sources, logger: logger}
}

func (c *ChainPricer) GetPrice(ctx context.Context, assetID string) (decimal.Decimal, error) {
	var lastErr error
	for _, src := range c.sources {
		if err := ctx.Err(); err != nil {
			return decimal.Zero, err
		}

		price, err := src.Pricer.GetPrice(ctx, assetID)
		if err == nil {
			return price, nil
		}

		c.logger.Debug("price source failed",
			zap.String("source", src.Name),
			zap.String("asset", assetID),
			zap.Error(err))
		lastErr = err
	}

	if lastErr == nil {
		return decimal.Zero, errors.Wrapf(ErrPriceUnavailable, "no price sources for %s", assetID)
	}
	return decimal.Zero, errors.Wrapf(lastErr, "all price sources failed for %s", assetID)
}
