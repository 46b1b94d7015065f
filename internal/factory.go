package internal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/papertrade/config"
	"github.com/vadiminshakov/papertrade/internal/clients"
	"github.com/vadiminshakov/papertrade/internal/events"
	"github.com/vadiminshakov/papertrade/internal/ledger"
	"github.com/vadiminshakov/papertrade/internal/market"
	"github.com/vadiminshakov/papertrade/internal/services/pricer"
	"github.com/vadiminshakov/papertrade/internal/storage/filestore"
	"github.com/vadiminshakov/papertrade/internal/storage/postgres"
	"github.com/vadiminshakov/papertrade/internal/storage/walstore"
)

// NewStore opens the storage backend selected in cfg.
// This is the single point of truth for dispatching to backend implementations.
func NewStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (ledger.Store, error) {
	switch cfg.Backend {
	case config.BackendWAL:
		return walstore.New(walstore.Config{
			Dir:              filepath.Join(cfg.Dir, "wal"),
			SegmentThreshold: cfg.SegmentThreshold,
		})
	case config.BackendFile:
		return filestore.New(filepath.Join(cfg.Dir, "accounts"))
	case config.BackendPostgres:
		return postgres.Open(ctx, cfg.DSN, logger)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}

// NewPricer builds the price chain of cfg in source order.
func NewPricer(cfg config.Config, catalogue *market.Catalogue, logger *zap.Logger) (*pricer.ChainPricer, error) {
	sources := make([]pricer.Source, 0, len(cfg.Pricer.Sources))
	for _, name := range cfg.Pricer.Sources {
		p, err := newSource(name, cfg, catalogue)
		if err != nil {
			return nil, errors.Wrapf(err, "price source %s", name)
		}
		sources = append(sources, pricer.Source{Name: name, Pricer: p})
	}
	return pricer.NewChainPricer(logger, sources...), nil
}

func newSource(name string, cfg config.Config, catalogue *market.Catalogue) (pricer.Pricer, error) {
	switch name {
	case config.SourceStatic:
		return pricer.NewStaticPricer(catalogue, cfg.Pricer.Overrides), nil
	case config.SourceBinance:
		client := clients.NewBinanceClient(clients.CredentialsFromEnv("BINANCE"))
		return pricer.NewBinancePricer(client, catalogue, cfg.QuoteCurrency), nil
	case config.SourceBybit:
		client := clients.NewBybitClient(clients.CredentialsFromEnv("BYBIT"))
		return pricer.NewBybitPricer(client, catalogue, cfg.QuoteCurrency), nil
	case config.SourceHyperliquid:
		client, err := clients.NewHyperliquidClient(os.Getenv("HYPERLIQUID_PRIVATE_KEY"), cfg.Pricer.HyperliquidURL)
		if err != nil {
			return nil, err
		}
		return pricer.NewHyperliquidPricer(client.Info(), catalogue, cfg.QuoteCurrency), nil
	default:
		return nil, fmt.Errorf("unsupported price source: %s", name)
	}
}

// Session is an opened ledger with the collaborators it was wired with.
type Session struct {
	Config      config.Config
	Ledger      *ledger.Ledger
	Catalogue   *market.Catalogue
	Broadcaster *events.AccountBroadcaster
	Logger      *zap.Logger
}

// OpenSession wires storage, prices and events for cfg and opens the account.
func OpenSession(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	catalogue := market.Default()

	store, err := NewStore(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, errors.Wrap(err, "open storage")
	}

	prices, err := NewPricer(cfg, catalogue, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	broadcaster := events.NewAccountBroadcaster(256)
	l, err := ledger.Open(ctx, cfg.AccountID, store, prices,
		ledger.WithLogger(logger),
		ledger.WithPublisher(broadcaster),
		ledger.WithStartingBalance(cfg.StartingBalance))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &Session{
		Config:      cfg,
		Ledger:      l,
		Catalogue:   catalogue,
		Broadcaster: broadcaster,
		Logger:      logger,
	}, nil
}

// Close ends the snapshot streams and closes the ledger store.
func (s *Session) Close() error {
	s.Broadcaster.Close()
	return s.Ledger.Close()
}
