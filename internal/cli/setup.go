package cli

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"

	"github.com/vadiminshakov/papertrade/config"
	"github.com/vadiminshakov/papertrade/internal/setup"
)

// setupCmd writes a config file through the interactive wizard.
type setupCmd struct {
	app *App
	out string
}

func (*setupCmd) Name() string     { return "setup" }
func (*setupCmd) Synopsis() string { return "create a config file interactively" }
func (*setupCmd) Usage() string {
	return `papertrade setup [-o <path>]

  Walks through account, storage and price source settings and saves them.
  An existing -config file is used as the starting point.
`
}

func (c *setupCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.out, "o", "config.yaml", "where to write the config")
}

func (c *setupCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	base := config.Default()
	if c.app.Flags.Path != "" {
		if _, err := os.Stat(c.app.Flags.Path); err == nil {
			cfg, err := c.app.Flags.Resolve()
			if err != nil {
				return c.app.fail("%v", err)
			}
			base = cfg
		}
	}

	if _, err := setup.RunTUI(base, c.out); err != nil {
		return c.app.fail("%v", err)
	}
	return subcommands.ExitSuccess
}
