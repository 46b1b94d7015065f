package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterTransactions(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	txs := []Transaction{
		{ID: "1", Type: TransactionDeposit, Amount: decimal.NewFromInt(10000), Timestamp: base, Status: StatusCompleted},
		{ID: "2", Type: TransactionBuy, AssetID: "bitcoin", Timestamp: base.Add(time.Minute), Status: StatusCompleted},
		{ID: "3", Type: TransactionSell, AssetID: "bitcoin", Timestamp: base.Add(2 * time.Minute), Status: StatusFailed},
		{ID: "4", Type: TransactionBuy, AssetID: "ethereum", Timestamp: base.Add(3 * time.Minute), Status: StatusCompleted},
		{ID: "5", Type: TransactionWithdraw, Timestamp: base.Add(4 * time.Minute), Status: StatusPending},
	}

	ids := func(in []Transaction) []string {
		out := make([]string, 0, len(in))
		for _, tx := range in {
			out = append(out, tx.ID)
		}
		return out
	}

	tests := []struct {
		name   string
		filter TransactionFilter
		want   []string
	}{
		{name: "all newest first", filter: TransactionFilter{}, want: []string{"5", "4", "3", "2", "1"}},
		{name: "by type", filter: TransactionFilter{Type: TransactionBuy}, want: []string{"4", "2"}},
		{name: "query asset", filter: TransactionFilter{Query: "BITCOIN"}, want: []string{"3", "2"}},
		{name: "query status", filter: TransactionFilter{Query: "pend"}, want: []string{"5"}},
		{name: "query cash currency", filter: TransactionFilter{Query: "usd"}, want: []string{"5", "1"}},
		{name: "type and query", filter: TransactionFilter{Type: TransactionSell, Query: "failed"}, want: []string{"3"}},
		{name: "limit", filter: TransactionFilter{Limit: 2}, want: []string{"5", "4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(FilterTransactions(txs, tt.filter)))
		})
	}

	assert.Equal(t, "1", txs[0].ID, "input is not reordered")
}

func TestParseTransactionType(t *testing.T) {
	tt, ok := ParseTransactionType(" Withdraw ")
	require.True(t, ok)
	assert.Equal(t, TransactionWithdraw, tt)
	assert.True(t, tt.IsDebit())
	assert.False(t, TransactionDeposit.IsDebit())

	_, ok = ParseTransactionType("transfer")
	assert.False(t, ok)
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "$1,234.50", FormatUSD(decimal.RequireFromString("1234.5")))
	assert.Equal(t, "$0.01", FormatUSD(decimal.RequireFromString("0.005")))
	assert.Equal(t, "1.5 XXXX", FormatMoney(decimal.RequireFromString("1.5"), "XXXX"))

	// sub-cent prices keep their precision instead of printing $0.00
	assert.Equal(t, "$0.00001", FormatUSD(decimal.RequireFromString("0.00001")))
	assert.Equal(t, "-$0.004", FormatUSD(decimal.RequireFromString("-0.004")))
	assert.Equal(t, "$0.00", FormatUSD(decimal.Zero))

	// beyond int64 minor units the amount is not wrapped around
	huge := decimal.RequireFromString("100000000000000000")
	assert.Equal(t, "$100000000000000000", FormatUSD(huge))
	assert.Equal(t, "$92,233,720,368,547,758.07", FormatUSD(decimal.RequireFromString("92233720368547758.07")))
}
