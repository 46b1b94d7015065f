// Package cli implements the papertrade command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/google/subcommands"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vadiminshakov/papertrade/config"
	"github.com/vadiminshakov/papertrade/internal"
	"github.com/vadiminshakov/papertrade/internal/domain"
	"github.com/vadiminshakov/papertrade/pkg/retrier"
)

// App holds what the commands share. As a CLI it lives for one command.
type App struct {
	Flags config.Flags
	Out   io.Writer
	Err   io.Writer
	// Plain prints raw markdown instead of rendering it for the terminal.
	Plain bool
}

// New returns an App writing to the process stdout and stderr.
func New() *App {
	return &App{Out: os.Stdout, Err: os.Stderr}
}

// Register the subcommands.
func (a *App) Register(c *subcommands.Commander) {
	c.Register(&tradeCmd{app: a, side: domain.TransactionBuy}, "trading")
	c.Register(&tradeCmd{app: a, side: domain.TransactionSell}, "trading")
	c.Register(&interactiveTradeCmd{app: a}, "trading")

	c.Register(&fundsCmd{app: a, direction: domain.TransactionDeposit}, "funds")
	c.Register(&fundsCmd{app: a, direction: domain.TransactionWithdraw}, "funds")

	c.Register(&holdingsCmd{app: a}, "reports")
	c.Register(&historyCmd{app: a}, "reports")
	c.Register(&valueCmd{app: a}, "reports")
	c.Register(&assetsCmd{app: a}, "reports")

	c.Register(&serveCmd{app: a}, "server")
	c.Register(&setupCmd{app: a}, "")
}

// open resolves the configuration and opens the account ledger.
func (a *App) open(ctx context.Context) (*internal.Session, error) {
	cfg, err := a.Flags.Resolve()
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return internal.OpenSession(ctx, cfg, logger)
}

// commit runs op and, when the store did not acknowledge the change,
// retries the write up to retry.max_retries times with backoff. A change
// that still cannot be persisted, or that lost a race with another writer,
// is discarded so the account stays at its last committed state.
func (a *App) commit(ctx context.Context, s *internal.Session, op func(ctx context.Context) (domain.Transaction, error)) (domain.Transaction, error) {
	tx, err := op(ctx)
	if err == nil || !errors.Is(err, domain.ErrPersistence) {
		return tx, err
	}

	rc := s.Config.Retry
	if rc.MaxRetries > 0 && !errors.Is(err, domain.ErrConflict) {
		r := retrier.New(
			// the first Ledger.Retry call is itself a retry
			retrier.WithMaxRetries(rc.MaxRetries-1),
			retrier.WithInitialInterval(rc.InitialInterval),
			retrier.WithMaxInterval(rc.MaxInterval),
			retrier.WithRetryIf(func(err error) bool {
				return errors.Is(err, domain.ErrPersistence) && !errors.Is(err, domain.ErrConflict)
			}),
			retrier.WithOnRetry(func(attempt int, err error) {
				s.Logger.Warn("retrying unpersisted change", zap.Int("attempt", attempt), zap.Error(err))
			}),
		)

		committed, retryErr := retrier.DoWithData(r, ctx, s.Ledger.Retry)
		if retryErr == nil {
			return committed, nil
		}
		err = retryErr
	}

	if discarded, ok := s.Ledger.Discard(); ok {
		if errors.Is(err, domain.ErrConflict) {
			fmt.Fprintf(a.Err, "Change %s was discarded: the account was changed by another process\n", discarded.ID)
		} else {
			fmt.Fprintf(a.Err, "Change %s was not saved and has been discarded\n", discarded.ID)
		}
	}
	return tx, err
}

func (a *App) printMarkdown(md string) {
	if a.Plain {
		fmt.Fprint(a.Out, md)
		return
	}

	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err == nil {
		var out string
		if out, err = r.Render(md); err == nil {
			fmt.Fprint(a.Out, out)
			return
		}
	}
	fmt.Fprint(a.Out, md)
}

func (a *App) fail(format string, args ...any) subcommands.ExitStatus {
	fmt.Fprintf(a.Err, "Error: "+format+"\n", args...)
	return subcommands.ExitFailure
}

func (a *App) usage(format string, args ...any) subcommands.ExitStatus {
	fmt.Fprintf(a.Err, format+"\n", args...)
	return subcommands.ExitUsageError
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "log level %q", level)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}
