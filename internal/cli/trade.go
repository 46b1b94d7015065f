package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/papertrade/internal"
	"github.com/vadiminshakov/papertrade/internal/domain"
	"github.com/vadiminshakov/papertrade/internal/setup"
)

// tradeCmd implements both 'buy' and 'sell'.
type tradeCmd struct {
	app   *App
	side  domain.TransactionType
	price string
}

func (c *tradeCmd) Name() string { return c.side.String() }
func (c *tradeCmd) Synopsis() string {
	return fmt.Sprintf("%s an asset at a given or the current market price", c.side)
}
func (c *tradeCmd) Usage() string {
	return fmt.Sprintf(`papertrade %s [-price <usd>] <asset> <amount>

  Records a %s of <amount> units of <asset> (id or symbol, e.g. bitcoin or BTC).
  Without -price the configured price sources are asked for the current price.
`, c.side, c.side)
}

func (c *tradeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.price, "price", "", "unit price in USD; defaults to the current market price")
}

func (c *tradeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 2 {
		return c.app.usage("%s", c.Usage())
	}
	amount, err := domain.ParseAmount(f.Arg(1))
	if err != nil {
		return c.app.usage("Invalid amount: %v", err)
	}
	var price decimal.Decimal
	if c.price != "" {
		if price, err = domain.ParseAmount(c.price); err != nil {
			return c.app.usage("Invalid price: %v", err)
		}
	}

	s, err := c.app.open(ctx)
	if err != nil {
		return c.app.fail("%v", err)
	}
	defer s.Close()

	return c.app.executeTrade(ctx, s, c.side, s.Catalogue.Canonical(f.Arg(0)), amount, price)
}

// executeTrade quotes a missing price, applies the trade and reports it.
func (a *App) executeTrade(ctx context.Context, s *internal.Session, side domain.TransactionType, assetID string, amount, price decimal.Decimal) subcommands.ExitStatus {
	if price.IsZero() {
		quoted, err := s.Ledger.Quote(ctx, assetID)
		if err != nil {
			return a.fail("no price for %s: %v", assetID, err)
		}
		price = quoted
	}

	tx, err := a.commit(ctx, s, func(ctx context.Context) (domain.Transaction, error) {
		if side == domain.TransactionSell {
			return s.Ledger.Sell(ctx, assetID, amount, price)
		}
		return s.Ledger.Buy(ctx, assetID, amount, price)
	})
	if err != nil {
		return a.fail("%v", err)
	}

	fmt.Fprintf(a.Out, "%s %s %s at %s, total %s. Balance: %s\n",
		capitalize(tx.Type.String()), tx.Amount.String(), s.Catalogue.Symbol(tx.AssetID),
		domain.FormatUSD(tx.Price), domain.FormatUSD(tx.TotalValue), domain.FormatUSD(s.Ledger.Balance()))
	return subcommands.ExitSuccess
}

// interactiveTradeCmd collects the trade through a terminal form.
type interactiveTradeCmd struct {
	app *App
}

func (*interactiveTradeCmd) Name() string { return "trade" }
func (*interactiveTradeCmd) Synopsis() string {
	return "buy or sell interactively at the current price"
}
func (*interactiveTradeCmd) Usage() string {
	return `papertrade trade

  Opens a form to pick side, asset and amount, shows the current price and
  total, and records the trade once confirmed.
`
}
func (*interactiveTradeCmd) SetFlags(*flag.FlagSet) {}

func (c *interactiveTradeCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := c.app.open(ctx)
	if err != nil {
		return c.app.fail("%v", err)
	}
	defer s.Close()

	order, err := setup.RunTradeForm(s.Catalogue, func(assetID string) (decimal.Decimal, error) {
		return s.Ledger.Quote(ctx, assetID)
	})
	if err != nil {
		return c.app.fail("%v", err)
	}

	return c.app.executeTrade(ctx, s, order.Side, order.AssetID, order.Amount, decimal.Zero)
}
