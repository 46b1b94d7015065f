// Package ledger runs the accounting engine for one account: it applies
// trades and cash movements to the in-memory account and treats a change as
// committed only once the store has acknowledged it.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/papertrade/internal/domain"
	"go.uber.org/zap"
)

// DefaultStartingBalance funds a new simulated account.
var DefaultStartingBalance = decimal.NewFromInt(10000)

// Store persists account snapshots together with their transaction records.
type Store interface {
	// Load returns nil, nil for an unknown account.
	Load(ctx context.Context, accountID string) (*domain.Account, error)
	// Commit durably stores the account state and the record that produced it.
	// It returns domain.ErrConflict when the stored account is not at
	// account.Version-1, and nil when tx.ID is already stored.
	Commit(ctx context.Context, account domain.Account, tx domain.Transaction) error
	Transactions(ctx context.Context, accountID string) ([]domain.Transaction, error)
	Close() error
}

// Pricer supplies current market prices.
type Pricer interface {
	GetPrice(ctx context.Context, assetID string) (decimal.Decimal, error)
}

// Publisher receives committed snapshots.
type Publisher interface {
	Publish(s domain.AccountSnapshot)
}

// PendingChange is an applied change whose durable write failed.
type PendingChange struct {
	Account     *domain.Account
	Transaction domain.Transaction
}

// Ledger is the accounting engine of a single account.
type Ledger struct {
	mu              sync.Mutex
	account         *domain.Account
	pending         *PendingChange
	stale           bool
	store           Store
	pricer          Pricer
	publisher       Publisher
	logger          *zap.Logger
	now             func() time.Time
	newID           func() string
	startingBalance decimal.Decimal
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(lg *Ledger) {
		if l != nil {
			lg.logger = l
		}
	}
}

// WithPublisher sets the receiver of committed snapshots.
func WithPublisher(p Publisher) Option {
	return func(lg *Ledger) {
		lg.publisher = p
	}
}

// WithClock overrides the time source used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(lg *Ledger) {
		lg.now = now
	}
}

// WithIDGenerator overrides transaction id generation.
func WithIDGenerator(newID func() string) Option {
	return func(lg *Ledger) {
		lg.newID = newID
	}
}

// WithStartingBalance sets the balance of a newly created account.
func WithStartingBalance(b decimal.Decimal) Option {
	return func(lg *Ledger) {
		lg.startingBalance = b
	}
}

// Open loads accountID from the store. An unknown account is created and
// funded with the starting balance through an opening deposit.
func Open(ctx context.Context, accountID string, store Store, pricer Pricer, opts ...Option) (*Ledger, error) {
	if accountID == "" {
		return nil, errors.New("account id is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}

	l := &Ledger{
		store:           store,
		pricer:          pricer,
		logger:          zap.NewNop(),
		now:             time.Now,
		newID:           func() string { return uuid.New().String() },
		startingBalance: DefaultStartingBalance,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(zap.String("account", accountID))

	account, err := l.load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account != nil {
		l.account = account
		l.logger.Info("account loaded",
			zap.String("balance", account.Balance.String()),
			zap.Int("holdings", len(account.Holdings)),
			zap.Int64("version", account.Version))
		return l, nil
	}

	l.account = domain.NewAccount(accountID, decimal.Zero)
	if l.startingBalance.IsPositive() {
		_, err := l.AddFunds(ctx, l.startingBalance)
		switch {
		case errors.Is(err, domain.ErrConflict):
			// another process created the account first
			l.Discard()
			l.mu.Lock()
			err = l.reload(ctx)
			l.mu.Unlock()
			if err != nil {
				return nil, err
			}
			return l, nil
		case err != nil:
			return nil, errors.Wrap(err, "fund new account")
		}
	}
	l.logger.Info("account created", zap.String("balance", l.account.Balance.String()))

	return l, nil
}

// Buy purchases amount units of assetID at price.
func (l *Ledger) Buy(ctx context.Context, assetID string, amount, price decimal.Decimal) (domain.Transaction, error) {
	return l.apply(ctx, "buy", func(a *domain.Account) (domain.Transaction, error) {
		return a.Buy(assetID, amount, price)
	})
}

// Sell disposes of amount units of assetID at price.
func (l *Ledger) Sell(ctx context.Context, assetID string, amount, price decimal.Decimal) (domain.Transaction, error) {
	return l.apply(ctx, "sell", func(a *domain.Account) (domain.Transaction, error) {
		return a.Sell(assetID, amount, price)
	})
}

// AddFunds deposits cash.
func (l *Ledger) AddFunds(ctx context.Context, amount decimal.Decimal) (domain.Transaction, error) {
	return l.apply(ctx, "deposit", func(a *domain.Account) (domain.Transaction, error) {
		return a.AddFunds(amount)
	})
}

// WithdrawFunds withdraws cash.
func (l *Ledger) WithdrawFunds(ctx context.Context, amount decimal.Decimal) (domain.Transaction, error) {
	return l.apply(ctx, "withdraw", func(a *domain.Account) (domain.Transaction, error) {
		return a.WithdrawFunds(amount)
	})
}

// apply runs op on a copy of the committed account and commits the copy
// once the store acknowledges it. Validation errors leave everything as is.
func (l *Ledger) apply(ctx context.Context, op string, fn func(*domain.Account) (domain.Transaction, error)) (domain.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pending != nil {
		return domain.Transaction{}, errors.Wrapf(domain.ErrPendingCommit, "%s: transaction %s", op, l.pending.Transaction.ID)
	}

	if l.stale {
		if err := l.reload(ctx); err != nil {
			return domain.Transaction{}, err
		}
	}

	next := l.account.Clone()
	tx, err := fn(next)
	if err != nil {
		l.logger.Debug("operation rejected", zap.String("op", op), zap.Error(err))
		return domain.Transaction{}, err
	}
	next.Version = l.account.Version + 1
	tx.ID = l.newID()
	tx.Timestamp = l.now()

	return l.commit(ctx, op, next, tx)
}

// commit must be called with mu held.
func (l *Ledger) commit(ctx context.Context, op string, next *domain.Account, tx domain.Transaction) (domain.Transaction, error) {
	tx.Status = domain.StatusCompleted
	if err := l.store.Commit(ctx, *next, tx); err != nil {
		tx.Status = domain.StatusPending
		l.pending = &PendingChange{Account: next, Transaction: tx}
		if errors.Is(err, domain.ErrConflict) {
			l.stale = true
		}
		l.logger.Warn("change applied but not persisted",
			zap.String("op", op),
			zap.String("tx", tx.ID),
			zap.Error(err))
		return tx, domain.NewPersistenceError(op, tx, err)
	}

	l.account = next
	l.pending = nil
	l.stale = false

	l.logger.Info("transaction committed",
		zap.String("op", op),
		zap.String("tx", tx.ID),
		zap.String("asset", tx.Asset()),
		zap.String("amount", tx.Amount.String()),
		zap.String("price", tx.Price.String()),
		zap.String("total", tx.TotalValue.String()),
		zap.String("balance", next.Balance.String()))

	if l.publisher != nil {
		l.publisher.Publish(next.Snapshot(tx.Timestamp, tx.ID))
	}

	return tx, nil
}

// load reads and checks the stored account; nil when it is unknown.
func (l *Ledger) load(ctx context.Context, accountID string) (*domain.Account, error) {
	account, err := l.store.Load(ctx, accountID)
	if err != nil {
		return nil, errors.Wrapf(err, "load account %s", accountID)
	}
	if account == nil {
		return nil, nil
	}
	if err := account.Validate(); err != nil {
		return nil, errors.Wrap(err, "stored account is inconsistent")
	}
	if account.Holdings == nil {
		account.Holdings = make(map[string]domain.Holding)
	}
	return account, nil
}

// reload replaces the committed account with the stored one after another
// writer moved it on. Must be called with mu held and nothing pending.
func (l *Ledger) reload(ctx context.Context) error {
	account, err := l.load(ctx, l.account.ID)
	if err != nil {
		return err
	}
	if account == nil {
		return errors.Errorf("account %s disappeared from the store", l.account.ID)
	}

	l.logger.Info("account reloaded after a concurrent change",
		zap.Int64("from_version", l.account.Version),
		zap.Int64("to_version", account.Version),
		zap.String("balance", account.Balance.String()))

	l.account = account
	l.stale = false
	return nil
}

// Pending returns a copy of the change awaiting persistence, if any.
func (l *Ledger) Pending() (PendingChange, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pending == nil {
		return PendingChange{}, false
	}
	return PendingChange{Account: l.pending.Account.Clone(), Transaction: l.pending.Transaction}, true
}

// Retry attempts the durable write of the pending change once more.
// It is a no-op when nothing is pending.
func (l *Ledger) Retry(ctx context.Context) (domain.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pending == nil {
		return domain.Transaction{}, nil
	}
	p := l.pending
	l.pending = nil

	return l.commit(ctx, "retry", p.Account, p.Transaction)
}

// Discard drops the pending change and returns its record marked failed.
// When the write was rejected as a conflict, the next mutation first
// reloads the account from the store.
func (l *Ledger) Discard() (domain.Transaction, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pending == nil {
		return domain.Transaction{}, false
	}
	tx := l.pending.Transaction
	tx.Status = domain.StatusFailed
	l.pending = nil

	l.logger.Warn("pending change discarded", zap.String("tx", tx.ID), zap.String("type", tx.Type.String()))

	return tx, true
}

// Account returns a copy of the committed account.
func (l *Ledger) Account() *domain.Account {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.account.Clone()
}

// Balance returns the committed cash balance.
func (l *Ledger) Balance() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.account.Balance
}

// Holdings returns the committed holdings ordered by asset id.
func (l *Ledger) Holdings() []domain.Holding {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.account.SortedHoldings()
}

// Transactions returns the stored history matching f, newest first.
func (l *Ledger) Transactions(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, error) {
	txs, err := l.store.Transactions(ctx, l.accountID())
	if err != nil {
		return nil, errors.Wrap(err, "load transactions")
	}
	return domain.FilterTransactions(txs, f), nil
}

// Close closes the store.
func (l *Ledger) Close() error {
	return l.store.Close()
}

func (l *Ledger) accountID() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.account.ID
}
