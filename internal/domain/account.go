// Package domain defines the account ledger: cash balance, asset holdings
// and the transaction records describing every change to them.
package domain

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Holding is a position in one asset valued at its weighted-average cost.
type Holding struct {
	AssetID      string          `json:"asset_id"`
	Amount       decimal.Decimal `json:"amount"`
	AveragePrice decimal.Decimal `json:"average_price"`
}

// CostBasis returns amount × average price.
func (h Holding) CostBasis() decimal.Decimal {
	return h.Amount.Mul(h.AveragePrice)
}

// Account is the cash and holdings of a single user.
// It is not safe for concurrent use; the owner serializes access.
type Account struct {
	ID       string             `json:"id"`
	Balance  decimal.Decimal    `json:"balance"`
	Holdings map[string]Holding `json:"holdings"`
	// Version counts committed changes. A store accepts a commit only when
	// it holds Version-1, so writers working from stale state are rejected.
	Version int64 `json:"version"`
}

// NewAccount creates an account with the given cash balance and no holdings.
func NewAccount(id string, balance decimal.Decimal) *Account {
	return &Account{
		ID:       id,
		Balance:  balance,
		Holdings: make(map[string]Holding),
	}
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	clone := &Account{
		ID:       a.ID,
		Balance:  a.Balance,
		Holdings: make(map[string]Holding, len(a.Holdings)),
		Version:  a.Version,
	}
	for id, h := range a.Holdings {
		clone.Holdings[id] = h
	}
	return clone
}

// Holding returns the position in assetID, if any.
func (a *Account) Holding(assetID string) (Holding, bool) {
	h, ok := a.Holdings[assetID]
	return h, ok
}

// Validate checks the account invariants, used on snapshots loaded from storage.
func (a *Account) Validate() error {
	if a.Balance.IsNegative() {
		return errors.Errorf("account %s has negative balance %s", a.ID, a.Balance.String())
	}
	for id, h := range a.Holdings {
		if id != h.AssetID {
			return errors.Errorf("holding key %q does not match asset %q", id, h.AssetID)
		}
		if !h.Amount.IsPositive() {
			return errors.Errorf("holding %s has non-positive amount %s", id, h.Amount.String())
		}
		if h.AveragePrice.IsNegative() {
			return errors.Errorf("holding %s has negative average price %s", id, h.AveragePrice.String())
		}
	}
	return nil
}

// Buy debits amount × price from the balance and adds amount to the holding,
// re-averaging its cost basis. The account is unchanged on error.
func (a *Account) Buy(assetID string, amount, price decimal.Decimal) (Transaction, error) {
	assetID = strings.TrimSpace(assetID)
	if err := validateTrade(assetID, amount, price); err != nil {
		return Transaction{}, errors.Wrap(err, "buy")
	}

	cost := amount.Mul(price)
	if cost.GreaterThan(a.Balance) {
		return Transaction{}, errors.Wrapf(ErrInsufficientFunds,
			"buy %s %s: have %s need %s", amount.String(), assetID, a.Balance.String(), cost.String())
	}

	h, ok := a.Holdings[assetID]
	if ok {
		// weighted from the pre-trade quantity and cost basis
		total := h.Amount.Add(amount)
		h.AveragePrice = h.Amount.Mul(h.AveragePrice).Add(cost).Div(total)
		h.Amount = total
	} else {
		h = Holding{AssetID: assetID, Amount: amount, AveragePrice: price}
	}

	a.Balance = a.Balance.Sub(cost)
	a.Holdings[assetID] = h

	return a.record(TransactionBuy, assetID, amount, price, cost), nil
}

// Sell credits amount × price to the balance and reduces the holding.
// The average price of the remaining units is unchanged; a holding that
// reaches zero is removed. The account is unchanged on error.
func (a *Account) Sell(assetID string, amount, price decimal.Decimal) (Transaction, error) {
	assetID = strings.TrimSpace(assetID)
	if err := validateTrade(assetID, amount, price); err != nil {
		return Transaction{}, errors.Wrap(err, "sell")
	}

	h, ok := a.Holdings[assetID]
	if !ok {
		return Transaction{}, errors.Wrapf(ErrAssetNotFound, "sell %s", assetID)
	}
	if h.Amount.LessThan(amount) {
		return Transaction{}, errors.Wrapf(ErrInsufficientHoldings,
			"sell %s: have %s need %s", assetID, h.Amount.String(), amount.String())
	}

	proceeds := amount.Mul(price)
	h.Amount = h.Amount.Sub(amount)

	a.Balance = a.Balance.Add(proceeds)
	if h.Amount.IsZero() {
		delete(a.Holdings, assetID)
	} else {
		a.Holdings[assetID] = h
	}

	return a.record(TransactionSell, assetID, amount, price, proceeds), nil
}

// AddFunds credits amount to the balance.
func (a *Account) AddFunds(amount decimal.Decimal) (Transaction, error) {
	if !amount.IsPositive() {
		return Transaction{}, errors.Wrapf(ErrInvalidAmount, "deposit %s", amount.String())
	}

	a.Balance = a.Balance.Add(amount)

	return a.record(TransactionDeposit, "", amount, decimal.NewFromInt(1), amount), nil
}

// WithdrawFunds debits amount from the balance.
func (a *Account) WithdrawFunds(amount decimal.Decimal) (Transaction, error) {
	if !amount.IsPositive() {
		return Transaction{}, errors.Wrapf(ErrInvalidAmount, "withdraw %s", amount.String())
	}
	if amount.GreaterThan(a.Balance) {
		return Transaction{}, errors.Wrapf(ErrInsufficientFunds,
			"withdraw: have %s need %s", a.Balance.String(), amount.String())
	}

	a.Balance = a.Balance.Sub(amount)

	return a.record(TransactionWithdraw, "", amount, decimal.NewFromInt(1), amount), nil
}

func (a *Account) record(t TransactionType, assetID string, amount, price, total decimal.Decimal) Transaction {
	return Transaction{
		AccountID:  a.ID,
		Type:       t,
		AssetID:    assetID,
		Amount:     amount,
		Price:      price,
		TotalValue: total,
		Status:     StatusPending,
	}
}

func validateTrade(assetID string, amount, price decimal.Decimal) error {
	if assetID == "" {
		return errors.Wrap(ErrInvalidAmount, "asset id is required")
	}
	if !amount.IsPositive() {
		return errors.Wrapf(ErrInvalidAmount, "amount must be positive, got %s", amount.String())
	}
	if !price.IsPositive() {
		return errors.Wrapf(ErrInvalidAmount, "price must be positive, got %s", price.String())
	}
	return nil
}

// ParseAmount parses user input into a positive decimal.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, errors.Wrapf(ErrInvalidAmount, "%q is not a number", s)
	}
	if !d.IsPositive() {
		return decimal.Zero, errors.Wrapf(ErrInvalidAmount, "%s must be greater than 0", d.String())
	}
	return d, nil
}
