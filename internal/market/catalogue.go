// Package market holds the tradable asset catalogue and maps asset ids to
// exchange symbols.
package market

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Asset is a catalogue entry.
type Asset struct {
	ID     string `json:"id" yaml:"id"`
	Symbol string `json:"symbol" yaml:"symbol"`
	Name   string `json:"name" yaml:"name"`
	// Price is the reference price in USD used when no live source answers.
	Price decimal.Decimal `json:"price" yaml:"price"`
	Rank  int             `json:"rank" yaml:"rank"`
	// Stable marks USD-pegged coins which always price at 1.
	Stable bool `json:"stable,omitempty" yaml:"stable,omitempty"`
}

// Catalogue resolves assets by id or symbol, case-insensitively.
type Catalogue struct {
	assets   []Asset
	byID     map[string]Asset
	bySymbol map[string]Asset
}

// DefaultAssets is the built-in market list.
func DefaultAssets() []Asset {
	return []Asset{
		{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin", Price: decimal.RequireFromString("72450.32"), Rank: 1},
		{ID: "ethereum", Symbol: "eth", Name: "Ethereum", Price: decimal.RequireFromString("3890.74"), Rank: 2},
		{ID: "tether", Symbol: "usdt", Name: "Tether", Price: decimal.NewFromInt(1), Rank: 3, Stable: true},
		{ID: "bnb", Symbol: "bnb", Name: "BNB", Price: decimal.RequireFromString("598.32"), Rank: 4},
		{ID: "solana", Symbol: "sol", Name: "Solana", Price: decimal.RequireFromString("157.89"), Rank: 5},
		{ID: "xrp", Symbol: "xrp", Name: "XRP", Price: decimal.RequireFromString("0.58"), Rank: 6},
		{ID: "cardano", Symbol: "ada", Name: "Cardano", Price: decimal.RequireFromString("0.47"), Rank: 7},
		{ID: "dogecoin", Symbol: "doge", Name: "Dogecoin", Price: decimal.RequireFromString("0.12"), Rank: 8},
	}
}

// NewCatalogue indexes assets. Later entries replace earlier ones with the
// same id or symbol.
func NewCatalogue(assets []Asset) *Catalogue {
	c := &Catalogue{
		byID:     make(map[string]Asset, len(assets)),
		bySymbol: make(map[string]Asset, len(assets)),
	}
	for _, a := range assets {
		c.byID[strings.ToLower(a.ID)] = a
		c.bySymbol[strings.ToLower(a.Symbol)] = a
	}
	for _, a := range c.byID {
		c.assets = append(c.assets, a)
	}
	sort.Slice(c.assets, func(i, j int) bool {
		if c.assets[i].Rank != c.assets[j].Rank {
			return c.assets[i].Rank < c.assets[j].Rank
		}
		return c.assets[i].ID < c.assets[j].ID
	})
	return c
}

// Default returns the catalogue of DefaultAssets.
func Default() *Catalogue {
	return NewCatalogue(DefaultAssets())
}

// Lookup finds an asset by id, then by symbol.
func (c *Catalogue) Lookup(idOrSymbol string) (Asset, bool) {
	key := strings.ToLower(strings.TrimSpace(idOrSymbol))
	if a, ok := c.byID[key]; ok {
		return a, true
	}
	a, ok := c.bySymbol[key]
	return a, ok
}

// Symbol returns the upper-case ticker base of an asset. Unknown ids are
// returned upper-cased as-is.
func (c *Catalogue) Symbol(assetID string) string {
	if a, ok := c.Lookup(assetID); ok {
		return strings.ToUpper(a.Symbol)
	}
	return strings.ToUpper(strings.TrimSpace(assetID))
}

// Pair builds the exchange pair of an asset against quote.
func (c *Catalogue) Pair(assetID, quote string) Pair {
	return Pair{From: c.Symbol(assetID), To: strings.ToUpper(quote)}
}

// Canonical maps a symbol or differently-cased id to the catalogue id.
// Unknown assets are lower-cased.
func (c *Catalogue) Canonical(idOrSymbol string) string {
	if a, ok := c.Lookup(idOrSymbol); ok {
		return a.ID
	}
	return strings.ToLower(strings.TrimSpace(idOrSymbol))
}

// IsStable reports whether the asset is a USD-pegged coin or the quote
// currency itself.
func (c *Catalogue) IsStable(assetID, quote string) bool {
	if strings.EqualFold(c.Symbol(assetID), quote) {
		return true
	}
	a, ok := c.Lookup(assetID)
	return ok && a.Stable
}

// Assets lists the catalogue ordered by rank.
func (c *Catalogue) Assets() []Asset {
	out := make([]Asset, len(c.assets))
	copy(out, c.assets)
	return out
}
