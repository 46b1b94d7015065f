package domain

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func noPrices(string) (decimal.Decimal, bool) {
	return decimal.Zero, false
}

func TestAccount_Scenario(t *testing.T) {
	acc := NewAccount("user-1", d("10000"))

	// 1. first buy opens the position at the trade price
	tx, err := acc.Buy("BTC", d("0.1"), d("60000"))
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(d("4000")))
	h, ok := acc.Holding("BTC")
	require.True(t, ok)
	assert.True(t, h.Amount.Equal(d("0.1")))
	assert.True(t, h.AveragePrice.Equal(d("60000")))
	assert.Equal(t, TransactionBuy, tx.Type)
	assert.True(t, tx.TotalValue.Equal(d("6000")))

	// 2. buy that costs more than the balance is rejected
	_, err = acc.Buy("BTC", d("0.1"), d("70000"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientFunds))
	assert.True(t, acc.Balance.Equal(d("4000")))
	h, _ = acc.Holding("BTC")
	assert.True(t, h.Amount.Equal(d("0.1")))
	assert.True(t, h.AveragePrice.Equal(d("60000")))

	// 3. deposit, then the same buy succeeds and re-averages
	_, err = acc.AddFunds(d("5000"))
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(d("9000")))

	_, err = acc.Buy("BTC", d("0.1"), d("70000"))
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(d("2000")))
	h, _ = acc.Holding("BTC")
	assert.True(t, h.Amount.Equal(d("0.2")))
	assert.True(t, h.AveragePrice.Equal(d("65000")), "got %s", h.AveragePrice)

	// 4. selling everything removes the holding
	tx, err = acc.Sell("BTC", d("0.2"), d("80000"))
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(d("18000")))
	assert.Empty(t, acc.Holdings)
	assert.True(t, tx.TotalValue.Equal(d("16000")))

	// 5. withdrawal above the balance is rejected
	_, err = acc.WithdrawFunds(d("20000"))
	assert.True(t, errors.Is(err, ErrInsufficientFunds))
	assert.True(t, acc.Balance.Equal(d("18000")))
}

func TestAccount_WeightedAverage(t *testing.T) {
	tests := []struct {
		name   string
		a1, p1 string
		a2, p2 string
		want   string
	}{
		{name: "equal amounts", a1: "1", p1: "100", a2: "1", p2: "200", want: "150"},
		{name: "unequal amounts", a1: "3", p1: "10", a2: "1", p2: "30", want: "15"},
		{name: "fractional", a1: "0.25", p1: "40000", a2: "0.75", p2: "44000", want: "43000"},
		{name: "same price", a1: "2", p1: "3.5", a2: "5", p2: "3.5", want: "3.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := NewAccount("acc", d("1000000"))
			_, err := acc.Buy("ETH", d(tt.a1), d(tt.p1))
			require.NoError(t, err)
			_, err = acc.Buy("ETH", d(tt.a2), d(tt.p2))
			require.NoError(t, err)

			h, ok := acc.Holding("ETH")
			require.True(t, ok)
			assert.True(t, h.AveragePrice.Equal(d(tt.want)), "got %s want %s", h.AveragePrice, tt.want)
			assert.True(t, h.Amount.Equal(d(tt.a1).Add(d(tt.a2))))

			spent := d(tt.a1).Mul(d(tt.p1)).Add(d(tt.a2).Mul(d(tt.p2)))
			assert.True(t, acc.Balance.Equal(d("1000000").Sub(spent)))
		})
	}
}

func TestAccount_BuyExactBalance(t *testing.T) {
	acc := NewAccount("acc", d("500"))
	_, err := acc.Buy("SOL", d("5"), d("100"))
	require.NoError(t, err)
	assert.True(t, acc.Balance.IsZero())
}

func TestAccount_SellKeepsAveragePrice(t *testing.T) {
	acc := NewAccount("acc", d("10000"))
	_, err := acc.Buy("SOL", d("10"), d("150"))
	require.NoError(t, err)
	_, err = acc.Buy("SOL", d("10"), d("170"))
	require.NoError(t, err)

	_, err = acc.Sell("SOL", d("5"), d("300"))
	require.NoError(t, err)

	h, ok := acc.Holding("SOL")
	require.True(t, ok)
	assert.True(t, h.Amount.Equal(d("15")))
	assert.True(t, h.AveragePrice.Equal(d("160")))
	assert.True(t, acc.Balance.Equal(d("10000").Sub(d("3200")).Add(d("1500"))))
}

func TestAccount_SellErrors(t *testing.T) {
	acc := NewAccount("acc", d("1000"))
	_, err := acc.Buy("XRP", d("100"), d("0.5"))
	require.NoError(t, err)
	before := acc.Clone()

	_, err = acc.Sell("DOGE", d("1"), d("0.1"))
	assert.True(t, errors.Is(err, ErrAssetNotFound))

	_, err = acc.Sell("XRP", d("100.0001"), d("0.5"))
	assert.True(t, errors.Is(err, ErrInsufficientHoldings))

	assert.Equal(t, before, acc)
}

func TestAccount_InvalidAmounts(t *testing.T) {
	acc := NewAccount("acc", d("1000"))
	_, err := acc.Buy("ADA", d("10"), d("0.47"))
	require.NoError(t, err)
	before := acc.Clone()

	cases := []struct {
		name string
		op   func() error
	}{
		{"buy zero amount", func() error { _, err := acc.Buy("ADA", d("0"), d("1")); return err }},
		{"buy negative price", func() error { _, err := acc.Buy("ADA", d("1"), d("-1")); return err }},
		{"buy empty asset", func() error { _, err := acc.Buy(" ", d("1"), d("1")); return err }},
		{"sell negative amount", func() error { _, err := acc.Sell("ADA", d("-1"), d("1")); return err }},
		{"sell zero price", func() error { _, err := acc.Sell("ADA", d("1"), d("0")); return err }},
		{"deposit zero", func() error { _, err := acc.AddFunds(d("0")); return err }},
		{"withdraw negative", func() error { _, err := acc.WithdrawFunds(d("-5")); return err }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.op()
			assert.True(t, errors.Is(err, ErrInvalidAmount), "got %v", err)
			assert.Equal(t, before, acc)
		})
	}
}

func TestAccount_FundsRecords(t *testing.T) {
	acc := NewAccount("acc", d("100"))

	tx, err := acc.AddFunds(d("50.25"))
	require.NoError(t, err)
	assert.Equal(t, TransactionDeposit, tx.Type)
	assert.Equal(t, "acc", tx.AccountID)
	assert.Equal(t, BaseCurrency, tx.Asset())
	assert.True(t, tx.TotalValue.Equal(d("50.25")))

	tx, err = acc.WithdrawFunds(d("150.25"))
	require.NoError(t, err)
	assert.Equal(t, TransactionWithdraw, tx.Type)
	assert.True(t, acc.Balance.IsZero())
}

func TestAccount_TotalValue(t *testing.T) {
	acc := NewAccount("acc", d("2500"))
	assert.True(t, acc.TotalValue(noPrices).Equal(d("2500")), "empty holdings value to the balance")
	assert.True(t, acc.TotalValue(nil).Equal(d("2500")))

	_, err := acc.Buy("BTC", d("0.01"), d("50000"))
	require.NoError(t, err)
	_, err = acc.Buy("ETH", d("0.5"), d("3000"))
	require.NoError(t, err)
	// balance 2500 - 500 - 1500 = 500

	prices := func(id string) (decimal.Decimal, bool) {
		if id == "BTC" {
			return d("60000"), true
		}
		return decimal.Zero, false
	}

	total := acc.TotalValue(prices)
	// 500 + 0.01*60000 + 0.5*3000 (fallback)
	assert.True(t, total.Equal(d("2600")), "got %s", total)
	assert.True(t, acc.TotalValue(prices).Equal(total), "valuation is repeatable")

	h, _ := acc.Holding("ETH")
	assert.True(t, h.AveragePrice.Equal(d("3000")), "fallback does not touch the holding")

	v := acc.Valuate(prices)
	require.Len(t, v.Positions, 2)
	assert.Equal(t, "BTC", v.Positions[0].AssetID)
	assert.True(t, v.Positions[0].Live)
	assert.True(t, v.Positions[0].UnrealizedPnL.Equal(d("100")))
	assert.False(t, v.Positions[1].Live)
	assert.True(t, v.Positions[1].UnrealizedPnL.IsZero())
	assert.True(t, v.HoldingsValue.Equal(d("2100")))
}

func TestAccount_CloneIsIndependent(t *testing.T) {
	acc := NewAccount("acc", d("100"))
	_, err := acc.Buy("BNB", d("0.1"), d("598.32"))
	require.NoError(t, err)

	clone := acc.Clone()
	_, err = clone.Sell("BNB", d("0.1"), d("600"))
	require.NoError(t, err)

	_, ok := acc.Holding("BNB")
	assert.True(t, ok)
	assert.False(t, acc.Balance.Equal(clone.Balance))
}

func TestAccount_Validate(t *testing.T) {
	acc := NewAccount("acc", d("1"))
	require.NoError(t, acc.Validate())

	acc.Holdings["BTC"] = Holding{AssetID: "BTC", Amount: decimal.Zero, AveragePrice: d("1")}
	assert.Error(t, acc.Validate())

	acc.Holdings["BTC"] = Holding{AssetID: "ETH", Amount: d("1"), AveragePrice: d("1")}
	assert.Error(t, acc.Validate())

	delete(acc.Holdings, "BTC")
	acc.Balance = d("-1")
	assert.Error(t, acc.Validate())
}

func TestParseAmount(t *testing.T) {
	v, err := ParseAmount(" 12.5 ")
	require.NoError(t, err)
	assert.True(t, v.Equal(d("12.5")))

	for _, in := range []string{"", "abc", "0", "-3", "1..2"} {
		_, err := ParseAmount(in)
		assert.True(t, errors.Is(err, ErrInvalidAmount), "input %q", in)
	}
}

func TestCheckVersion(t *testing.T) {
	assert.NoError(t, CheckVersion("alice", 0, 1))
	assert.NoError(t, CheckVersion("alice", 41, 42))

	err := CheckVersion("alice", 3, 3)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), "stored version 3")

	assert.ErrorIs(t, CheckVersion("alice", 5, 3), ErrConflict)
}

func TestAccount_CloneKeepsVersion(t *testing.T) {
	acc := NewAccount("alice", decimal.NewFromInt(1))
	acc.Version = 7
	assert.Equal(t, int64(7), acc.Clone().Version)
}
