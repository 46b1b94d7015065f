package cli

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/subcommands"
	"go.uber.org/zap"

	"github.com/vadiminshakov/papertrade/internal/web"
)

// serveCmd runs the HTTP API until interrupted.
type serveCmd struct {
	app  *App
	addr string
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "serve the account over HTTP" }
func (*serveCmd) Usage() string {
	return `papertrade serve [-addr <host:port>]

  Serves the JSON API and the account event stream until interrupted.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.addr, "addr", "", "listen address; overrides http.addr")
}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := c.app.open(ctx)
	if err != nil {
		return c.app.fail("%v", err)
	}
	defer s.Close()
	defer func() { _ = s.Logger.Sync() }()

	addr := s.Config.HTTPAddr
	if c.addr != "" {
		addr = c.addr
	}

	srv := web.NewServer(addr, s.Ledger, s.Broadcaster, s.Catalogue, s.Logger)
	if len(s.Config.TLSDomains) > 0 {
		err = srv.StartWithAutoTLS(ctx, s.Config.TLSDomains, s.Config.CertCache)
	} else {
		err = srv.Start(ctx)
	}
	if err != nil {
		s.Logger.Error("http server stopped", zap.Error(err))
		return c.app.fail("%v", err)
	}
	return subcommands.ExitSuccess
}
