package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// PriceLookup returns the current unit price of an asset, or false when
// no live price is available.
type PriceLookup func(assetID string) (decimal.Decimal, bool)

// PositionValue is one holding valued at a market or fallback price.
type PositionValue struct {
	AssetID      string          `json:"asset_id"`
	Amount       decimal.Decimal `json:"amount"`
	AveragePrice decimal.Decimal `json:"average_price"`
	Price        decimal.Decimal `json:"price"`
	// Live is false when Price fell back to the average price.
	Live          bool            `json:"live"`
	Value         decimal.Decimal `json:"value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// Valuation is the derived value of an account at a point in time.
type Valuation struct {
	Balance       decimal.Decimal `json:"balance"`
	HoldingsValue decimal.Decimal `json:"holdings_value"`
	Total         decimal.Decimal `json:"total"`
	Positions     []PositionValue `json:"positions"`
}

// TotalValue returns balance + Σ amount × price, using the average price
// for assets the lookup has no price for.
func (a *Account) TotalValue(lookup PriceLookup) decimal.Decimal {
	return a.Valuate(lookup).Total
}

// Valuate values every holding. It never modifies the account.
func (a *Account) Valuate(lookup PriceLookup) Valuation {
	v := Valuation{
		Balance:       a.Balance,
		HoldingsValue: decimal.Zero,
		Positions:     make([]PositionValue, 0, len(a.Holdings)),
	}

	for _, h := range a.Holdings {
		price, live := h.AveragePrice, false
		if lookup != nil {
			if p, ok := lookup(h.AssetID); ok {
				price, live = p, true
			}
		}
		value := h.Amount.Mul(price)
		v.HoldingsValue = v.HoldingsValue.Add(value)
		v.Positions = append(v.Positions, PositionValue{
			AssetID:       h.AssetID,
			Amount:        h.Amount,
			AveragePrice:  h.AveragePrice,
			Price:         price,
			Live:          live,
			Value:         value,
			UnrealizedPnL: value.Sub(h.CostBasis()),
		})
	}

	sort.Slice(v.Positions, func(i, j int) bool {
		return v.Positions[i].AssetID < v.Positions[j].AssetID
	})
	v.Total = v.Balance.Add(v.HoldingsValue)

	return v
}

// AccountSnapshot is the committed state of an account after a transaction.
type AccountSnapshot struct {
	Timestamp     time.Time       `json:"ts"`
	AccountID     string          `json:"account_id"`
	Balance       decimal.Decimal `json:"balance"`
	Holdings      []Holding       `json:"holdings"`
	TransactionID string          `json:"transaction_id,omitempty"`
}

// Snapshot captures the account as an event payload.
func (a *Account) Snapshot(ts time.Time, txID string) AccountSnapshot {
	return AccountSnapshot{
		Timestamp:     ts,
		AccountID:     a.ID,
		Balance:       a.Balance,
		Holdings:      a.SortedHoldings(),
		TransactionID: txID,
	}
}

// SortedHoldings returns the holdings ordered by asset id.
func (a *Account) SortedHoldings() []Holding {
	out := make([]Holding, 0, len(a.Holdings))
	for _, h := range a.Holdings {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out
}
