package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/vadiminshakov/papertrade/internal/domain"
)

// fundsCmd implements both 'deposit' and 'withdraw'.
type fundsCmd struct {
	app       *App
	direction domain.TransactionType
}

func (c *fundsCmd) Name() string { return c.direction.String() }
func (c *fundsCmd) Synopsis() string {
	if c.direction == domain.TransactionDeposit {
		return "add cash to the account"
	}
	return "take cash out of the account"
}
func (c *fundsCmd) Usage() string {
	return fmt.Sprintf(`papertrade %s <amount>

  %s a USD amount.
`, c.direction, capitalize(c.direction.String()))
}
func (*fundsCmd) SetFlags(*flag.FlagSet) {}

func (c *fundsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return c.app.usage("%s", c.Usage())
	}
	amount, err := domain.ParseAmount(f.Arg(0))
	if err != nil {
		return c.app.usage("Invalid amount: %v", err)
	}

	s, err := c.app.open(ctx)
	if err != nil {
		return c.app.fail("%v", err)
	}
	defer s.Close()

	tx, err := c.app.commit(ctx, s, func(ctx context.Context) (domain.Transaction, error) {
		if c.direction == domain.TransactionDeposit {
			return s.Ledger.AddFunds(ctx, amount)
		}
		return s.Ledger.WithdrawFunds(ctx, amount)
	})
	if err != nil {
		return c.app.fail("%v", err)
	}

	fmt.Fprintf(c.app.Out, "%s %s. Balance: %s\n",
		capitalize(tx.Type.String()), domain.FormatUSD(tx.Amount), domain.FormatUSD(s.Ledger.Balance()))
	return subcommands.ExitSuccess
}
