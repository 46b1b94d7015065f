package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the kind of ledger mutation a record describes.
type TransactionType string

const (
	TransactionBuy      TransactionType = "buy"
	TransactionSell     TransactionType = "sell"
	TransactionDeposit  TransactionType = "deposit"
	TransactionWithdraw TransactionType = "withdraw"
)

// ParseTransactionType validates a transaction type string.
func ParseTransactionType(s string) (TransactionType, bool) {
	switch t := TransactionType(strings.ToLower(strings.TrimSpace(s))); t {
	case TransactionBuy, TransactionSell, TransactionDeposit, TransactionWithdraw:
		return t, true
	}
	return "", false
}

// String returns the string representation of the transaction type.
func (t TransactionType) String() string {
	return string(t)
}

// IsDebit reports whether the transaction takes cash out of the balance.
func (t TransactionType) IsDebit() bool {
	return t == TransactionBuy || t == TransactionWithdraw
}

// TransactionStatus tracks a record through the persist handshake.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

// BaseCurrency is the accounting currency of balances and cost basis.
const BaseCurrency = "USD"

// Transaction is the audit record of one committed account mutation.
type Transaction struct {
	ID         string            `json:"id"`
	AccountID  string            `json:"account_id"`
	Type       TransactionType   `json:"type"`
	AssetID    string            `json:"asset_id,omitempty"`
	Amount     decimal.Decimal   `json:"amount"`
	Price      decimal.Decimal   `json:"price"`
	TotalValue decimal.Decimal   `json:"total_value"`
	Timestamp  time.Time         `json:"timestamp"`
	Status     TransactionStatus `json:"status"`
}

// Asset returns the asset id, or the base currency for cash movements.
func (t Transaction) Asset() string {
	if t.AssetID == "" {
		return BaseCurrency
	}
	return t.AssetID
}

// TransactionFilter selects records from a transaction history.
type TransactionFilter struct {
	// Type keeps only records of this type when set.
	Type TransactionType
	// Query is matched case-insensitively against asset, type and status.
	Query string
	// Limit caps the result size when positive.
	Limit int
}

// Match reports whether the transaction passes the filter.
func (f TransactionFilter) Match(tx Transaction) bool {
	if f.Type != "" && tx.Type != f.Type {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(tx.Asset()), q) ||
		strings.Contains(string(tx.Type), q) ||
		strings.Contains(string(tx.Status), q)
}

// FilterTransactions returns matching records, newest first.
func FilterTransactions(txs []Transaction, f TransactionFilter) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		if f.Match(tx) {
			out = append(out, tx)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}
