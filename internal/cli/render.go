package cli

import (
	"fmt"
	"strings"

	"github.com/vadiminshakov/papertrade/internal/domain"
	"github.com/vadiminshakov/papertrade/internal/market"
)

func holdingsMarkdown(accountID string, v domain.Valuation, catalogue *market.Catalogue) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Holdings of %s\n\n", accountID)
	if len(v.Positions) == 0 {
		b.WriteString("No holdings yet.\n\n")
	} else {
		b.WriteString("| Asset | Amount | Avg. price | Price | Value | Unrealized P&L |\n")
		b.WriteString("|:---|---:|---:|---:|---:|---:|\n")
		for _, p := range v.Positions {
			price := domain.FormatUSD(p.Price)
			if !p.Live {
				price += " *"
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
				assetLabel(catalogue, p.AssetID), p.Amount.String(),
				domain.FormatUSD(p.AveragePrice), price,
				domain.FormatUSD(p.Value), domain.FormatUSD(p.UnrealizedPnL))
		}
		b.WriteString("\n")
		if hasFallback(v) {
			b.WriteString("\\* no current price, valued at average price\n\n")
		}
	}

	writeTotals(&b, v)
	return b.String()
}

func valueMarkdown(accountID string, v domain.Valuation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Value of %s\n\n", accountID)
	writeTotals(&b, v)
	return b.String()
}

func writeTotals(b *strings.Builder, v domain.Valuation) {
	fmt.Fprintf(b, "- **Cash:** %s\n", domain.FormatUSD(v.Balance))
	fmt.Fprintf(b, "- **Holdings:** %s\n", domain.FormatUSD(v.HoldingsValue))
	fmt.Fprintf(b, "- **Total:** %s\n", domain.FormatUSD(v.Total))
}

func historyMarkdown(txs []domain.Transaction, catalogue *market.Catalogue) string {
	var b strings.Builder

	b.WriteString("# Transaction history\n\n")
	if len(txs) == 0 {
		b.WriteString("No transactions found.\n")
		return b.String()
	}

	b.WriteString("| Date | Type | Asset | Amount | Price | Total | Status |\n")
	b.WriteString("|:---|:---|:---|---:|---:|---:|:---|\n")
	for _, tx := range txs {
		asset := domain.BaseCurrency
		if tx.AssetID != "" {
			asset = assetLabel(catalogue, tx.AssetID)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s |\n",
			tx.Timestamp.Local().Format("2006-01-02 15:04"), tx.Type, asset, tx.Amount.String(),
			domain.FormatUSD(tx.Price), domain.FormatUSD(tx.TotalValue), tx.Status)
	}
	return b.String()
}

func assetsMarkdown(catalogue *market.Catalogue) string {
	var b strings.Builder

	b.WriteString("# Assets\n\n")
	b.WriteString("| # | Asset | Id | Reference price |\n")
	b.WriteString("|---:|:---|:---|---:|\n")
	for _, a := range catalogue.Assets() {
		fmt.Fprintf(&b, "| %d | %s (%s) | %s | %s |\n", a.Rank, a.Name, strings.ToUpper(a.Symbol), a.ID, domain.FormatUSD(a.Price))
	}
	return b.String()
}

func assetLabel(catalogue *market.Catalogue, assetID string) string {
	if a, ok := catalogue.Lookup(assetID); ok {
		return fmt.Sprintf("%s (%s)", a.Name, strings.ToUpper(a.Symbol))
	}
	return assetID
}

func hasFallback(v domain.Valuation) bool {
	for _, p := range v.Positions {
		if !p.Live {
			return true
		}
	}
	return false
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
