// Package postgres persists ledger commits in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/papertrade/internal/domain"
	"go.uber.org/zap"
)

const statementTimeout = 5 * time.Second

const schemaSQL = `
CREATE TABLE IF NOT EXISTS accounts (
    id TEXT PRIMARY KEY,
    balance NUMERIC(38,18) NOT NULL CHECK (balance >= 0),
    version BIGINT NOT NULL DEFAULT 0,
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);

ALTER TABLE accounts ADD COLUMN IF NOT EXISTS version BIGINT NOT NULL DEFAULT 0;

CREATE TABLE IF NOT EXISTS holdings (
    account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    asset_id TEXT NOT NULL,
    amount NUMERIC(38,18) NOT NULL CHECK (amount > 0),
    average_price NUMERIC(38,18) NOT NULL CHECK (average_price >= 0),
    PRIMARY KEY (account_id, asset_id)
);

CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    type VARCHAR(10) NOT NULL,
    asset_id TEXT NOT NULL DEFAULT '',
    amount NUMERIC(38,18) NOT NULL,
    price NUMERIC(38,18) NOT NULL,
    total_value NUMERIC(38,18) NOT NULL,
    status VARCHAR(12) NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL
);

CREATE INDEX IF NOT EXISTS transactions_account_created_idx ON transactions (account_id, created_at);
`

// Store is the PostgreSQL ledger store. Commits run in serializable
// transactions and only move an account forward from the version the
// committing ledger loaded, so clients sharing an account cannot overwrite
// each other's changes.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open connects to databaseURL, verifies the connection and ensures the schema.
func Open(ctx context.Context, databaseURL string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}

	pingCtx, cancel := context.WithTimeout(ctx, statementTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		logConnectionTroubleshootingGuidance(logger, err)
		_ = db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}

	s := New(db, logger)
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("connected to PostgreSQL and ensured schema")
	return s, nil
}

// New wraps an existing connection pool.
func New(db *sql.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// EnsureSchema creates the ledger tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	execCtx, cancel := context.WithTimeout(ctx, statementTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(execCtx, schemaSQL); err != nil {
		return errors.Wrap(err, "ensure ledger schema")
	}
	return nil
}

// Load reads the account and its holdings; nil, nil when unknown.
func (s *Store) Load(ctx context.Context, accountID string) (*domain.Account, error) {
	queryCtx, cancel := context.WithTimeout(ctx, statementTimeout)
	defer cancel()

	acc := domain.NewAccount(accountID, decimal.Zero)
	row := s.db.QueryRowContext(queryCtx, `SELECT balance, version FROM accounts WHERE id = $1`, accountID)
	if err := row.Scan(&acc.Balance, &acc.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "select account")
	}

	rows, err := s.db.QueryContext(queryCtx,
		`SELECT asset_id, amount, average_price FROM holdings WHERE account_id = $1`, accountID)
	if err != nil {
		return nil, errors.Wrap(err, "select holdings")
	}
	defer rows.Close()

	for rows.Next() {
		var h domain.Holding
		if err := rows.Scan(&h.AssetID, &h.Amount, &h.AveragePrice); err != nil {
			return nil, errors.Wrap(err, "scan holding")
		}
		acc.Holdings[h.AssetID] = h
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate holdings")
	}

	return acc, nil
}

// Commit writes the account row, replaces its holdings and inserts the
// transaction record in one serializable transaction. A transaction id that
// is already stored for the account is acknowledged without changes, which
// makes a retry after a lost acknowledgement safe.
func (s *Store) Commit(ctx context.Context, account domain.Account, tx domain.Transaction) error {
	if account.ID == "" {
		return errors.New("account id is required")
	}

	execCtx, cancel := context.WithTimeout(ctx, statementTimeout)
	defer cancel()

	sqlTx, err := s.db.BeginTx(execCtx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return errors.Wrap(err, "begin commit")
	}
	defer func() {
		// no-op after a successful Commit
		_ = sqlTx.Rollback()
	}()

	var owner string
	err = sqlTx.QueryRowContext(execCtx, `SELECT account_id FROM transactions WHERE id = $1`, tx.ID).Scan(&owner)
	switch {
	case err == nil && owner == account.ID:
		return nil
	case err == nil:
		return errors.Errorf("transaction %s belongs to account %s", tx.ID, owner)
	case !errors.Is(err, sql.ErrNoRows):
		return errors.Wrap(err, "check transaction id")
	}

	if err := s.advanceAccount(execCtx, sqlTx, account); err != nil {
		return err
	}

	if _, err := sqlTx.ExecContext(execCtx, `DELETE FROM holdings WHERE account_id = $1`, account.ID); err != nil {
		return errors.Wrap(err, "clear holdings")
	}
	for _, h := range account.SortedHoldings() {
		if _, err := sqlTx.ExecContext(execCtx,
			`INSERT INTO holdings (account_id, asset_id, amount, average_price) VALUES ($1, $2, $3, $4)`,
			account.ID, h.AssetID, h.Amount, h.AveragePrice); err != nil {
			return errors.Wrapf(err, "insert holding %s", h.AssetID)
		}
	}

	if _, err := sqlTx.ExecContext(execCtx, `
INSERT INTO transactions (id, account_id, type, asset_id, amount, price, total_value, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		tx.ID, account.ID, string(tx.Type), tx.AssetID, tx.Amount, tx.Price, tx.TotalValue, string(tx.Status), tx.Timestamp); err != nil {
		return errors.Wrap(err, "insert transaction")
	}

	if err := sqlTx.Commit(); err != nil {
		return errors.Wrap(err, "commit ledger transaction")
	}
	return nil
}

// advanceAccount moves the account row from Version-1 to Version. Rows
// created before versioning start at 0, like a missing row.
func (s *Store) advanceAccount(ctx context.Context, sqlTx *sql.Tx, account domain.Account) error {
	var (
		res sql.Result
		err error
	)
	if account.Version == 1 {
		res, err = sqlTx.ExecContext(ctx, `
INSERT INTO accounts (id, balance, version, updated_at) VALUES ($1, $2, $3, NOW())
ON CONFLICT (id) DO UPDATE SET balance = EXCLUDED.balance, version = EXCLUDED.version, updated_at = NOW()
WHERE accounts.version = 0`,
			account.ID, account.Balance, account.Version)
	} else {
		res, err = sqlTx.ExecContext(ctx, `
UPDATE accounts SET balance = $2, version = $3, updated_at = NOW()
WHERE id = $1 AND version = $4`,
			account.ID, account.Balance, account.Version, account.Version-1)
	}
	if err != nil {
		return errors.Wrap(err, "write account")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "write account")
	}
	if n == 0 {
		var stored int64
		err := sqlTx.QueryRowContext(ctx, `SELECT version FROM accounts WHERE id = $1`, account.ID).Scan(&stored)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return errors.Wrap(err, "read account version")
		}
		return errors.Wrapf(domain.ErrConflict, "account %s: stored version %d, committing %d", account.ID, stored, account.Version)
	}
	return nil
}

// Transactions returns the records of accountID in commit order.
func (s *Store) Transactions(ctx context.Context, accountID string) ([]domain.Transaction, error) {
	queryCtx, cancel := context.WithTimeout(ctx, statementTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(queryCtx, `
SELECT id, account_id, type, asset_id, amount, price, total_value, status, created_at
FROM transactions WHERE account_id = $1 ORDER BY created_at, id`, accountID)
	if err != nil {
		return nil, errors.Wrap(err, "select transactions")
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		var (
			tx             domain.Transaction
			txType, status string
		)
		if err := rows.Scan(&tx.ID, &tx.AccountID, &txType, &tx.AssetID, &tx.Amount, &tx.Price,
			&tx.TotalValue, &status, &tx.Timestamp); err != nil {
			return nil, errors.Wrap(err, "scan transaction")
		}
		tx.Type = domain.TransactionType(txType)
		tx.Status = domain.TransactionStatus(status)
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate transactions")
	}

	return txs, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func logConnectionTroubleshootingGuidance(logger *zap.Logger, connectionError error) {
	errorMessage := connectionError.Error()

	if strings.Contains(errorMessage, "role") && strings.Contains(errorMessage, "does not exist") {
		logger.Warn("the configured database user does not exist; check the DSN user or recreate the database volume")
		return
	}

	if strings.Contains(errorMessage, "password authentication failed") {
		logger.Warn("PostgreSQL rejected the supplied credentials; confirm the DSN user and password")
	}
}
