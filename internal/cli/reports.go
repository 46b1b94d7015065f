package cli

import (
	"context"
	"flag"

	"github.com/google/subcommands"

	"github.com/vadiminshakov/papertrade/internal/domain"
	"github.com/vadiminshakov/papertrade/internal/market"
)

// holdingsCmd shows every position valued at current prices.
type holdingsCmd struct {
	app *App
}

func (*holdingsCmd) Name() string     { return "holdings" }
func (*holdingsCmd) Synopsis() string { return "display holdings valued at current prices" }
func (*holdingsCmd) Usage() string {
	return `papertrade holdings

  Displays cash, every held asset with its average price, current price,
  value and unrealized gain, and the account total.
`
}
func (*holdingsCmd) SetFlags(*flag.FlagSet) {}

func (c *holdingsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := c.app.open(ctx)
	if err != nil {
		return c.app.fail("%v", err)
	}
	defer s.Close()

	c.app.printMarkdown(holdingsMarkdown(s.Config.AccountID, s.Ledger.Valuate(ctx), s.Catalogue))
	return subcommands.ExitSuccess
}

// valueCmd prints the account total.
type valueCmd struct {
	app *App
}

func (*valueCmd) Name() string     { return "value" }
func (*valueCmd) Synopsis() string { return "display the total account value" }
func (*valueCmd) Usage() string {
	return `papertrade value

  Displays cash, holdings value and their total.
`
}
func (*valueCmd) SetFlags(*flag.FlagSet) {}

func (c *valueCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := c.app.open(ctx)
	if err != nil {
		return c.app.fail("%v", err)
	}
	defer s.Close()

	c.app.printMarkdown(valueMarkdown(s.Config.AccountID, s.Ledger.Valuate(ctx)))
	return subcommands.ExitSuccess
}

// historyCmd lists recorded transactions.
type historyCmd struct {
	app   *App
	typ   string
	query string
	limit int
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "list transactions, newest first" }
func (*historyCmd) Usage() string {
	return `papertrade history [-type buy|sell|deposit|withdraw] [-q <text>] [-n <count>]

  Lists recorded transactions, newest first. -q matches asset, type and status.
`
}

func (c *historyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.typ, "type", "", "only transactions of this type")
	f.StringVar(&c.query, "q", "", "search asset, type and status")
	f.IntVar(&c.limit, "n", 0, "show at most n transactions")
}

func (c *historyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	filter := domain.TransactionFilter{Query: c.query, Limit: c.limit}
	if c.typ != "" && c.typ != "all" {
		t, ok := domain.ParseTransactionType(c.typ)
		if !ok {
			return c.app.usage("Unknown transaction type %q", c.typ)
		}
		filter.Type = t
	}

	s, err := c.app.open(ctx)
	if err != nil {
		return c.app.fail("%v", err)
	}
	defer s.Close()

	txs, err := s.Ledger.Transactions(ctx, filter)
	if err != nil {
		return c.app.fail("%v", err)
	}

	c.app.printMarkdown(historyMarkdown(txs, s.Catalogue))
	return subcommands.ExitSuccess
}

// assetsCmd lists the tradable catalogue. It needs no account.
type assetsCmd struct {
	app *App
}

func (*assetsCmd) Name() string     { return "assets" }
func (*assetsCmd) Synopsis() string { return "list known assets and their reference prices" }
func (*assetsCmd) Usage() string {
	return `papertrade assets
`
}
func (*assetsCmd) SetFlags(*flag.FlagSet) {}

func (c *assetsCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	c.app.printMarkdown(assetsMarkdown(market.Default()))
	return subcommands.ExitSuccess
}
