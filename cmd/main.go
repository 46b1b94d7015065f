// Command papertrade keeps a simulated cryptocurrency portfolio: buy and
// sell at given or live exchange prices, move cash in and out, and report
// holdings, history and value from the terminal or over HTTP.
//
// Usage:
//
//	papertrade -config config.yaml buy BTC 0.1
//	papertrade holdings
//	papertrade serve -addr :8080
//
// Exchange keys are optional and only used for price lookups:
//
//	BINANCE_API_KEY, BINANCE_API_SECRET, BYBIT_API_KEY, BYBIT_API_SECRET,
//	HYPERLIQUID_PRIVATE_KEY
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"

	"github.com/vadiminshakov/papertrade/internal/cli"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, "papertrade")
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	app := cli.New()
	app.Flags.Register(flag.CommandLine)
	flag.BoolVar(&app.Plain, "plain", false, "print raw markdown instead of styled output")
	app.Register(commander)

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
