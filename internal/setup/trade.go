package setup

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/papertrade/internal/domain"
	"github.com/vadiminshakov/papertrade/internal/market"
)

// TradeOrder is what the interactive trade form collects.
type TradeOrder struct {
	Side    domain.TransactionType
	AssetID string
	Amount  decimal.Decimal
}

// RunTradeForm asks for side, asset and amount. quote prices the chosen
// asset for the confirmation step; it may be nil.
func RunTradeForm(catalogue *market.Catalogue, quote func(assetID string) (decimal.Decimal, error)) (TradeOrder, error) {
	if catalogue == nil {
		catalogue = market.Default()
	}

	var (
		side      = string(domain.TransactionBuy)
		assetID   string
		amountStr string
		confirm   bool
	)

	assetOptions := make([]huh.Option[string], 0, len(catalogue.Assets()))
	for _, a := range catalogue.Assets() {
		label := fmt.Sprintf("%s (%s)", a.Name, strings.ToUpper(a.Symbol))
		assetOptions = append(assetOptions, huh.NewOption(label, a.ID))
	}

	fmt.Println(stepStyle.Render("TRADE"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Side").
				Options(
					huh.NewOption("Buy", string(domain.TransactionBuy)),
					huh.NewOption("Sell", string(domain.TransactionSell)),
				).
				Value(&side),
			huh.NewSelect[string]().
				Title("Asset").
				Options(assetOptions...).
				Value(&assetID),
			huh.NewInput().
				Title("Amount").
				Description("Units of the asset").
				Value(&amountStr).
				Validate(validateTradeAmount),
		),
	).Run()
	if err != nil {
		return TradeOrder{}, err
	}

	amount, err := domain.ParseAmount(amountStr)
	if err != nil {
		return TradeOrder{}, err
	}

	title := fmt.Sprintf("%s %s %s?", side, amount.String(), catalogue.Symbol(assetID))
	if quote != nil {
		if price, err := quote(assetID); err == nil {
			title = fmt.Sprintf("%s %s %s at %s (total %s)?", side, amount.String(), catalogue.Symbol(assetID),
				domain.FormatUSD(price), domain.FormatUSD(amount.Mul(price)))
		}
	}

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Affirmative("Confirm").
				Negative("Cancel").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return TradeOrder{}, err
	}
	if !confirm {
		return TradeOrder{}, fmt.Errorf("trade cancelled by user")
	}

	return TradeOrder{Side: domain.TransactionType(side), AssetID: assetID, Amount: amount}, nil
}

func validateTradeAmount(s string) error {
	if _, err := domain.ParseAmount(s); err != nil {
		return fmt.Errorf("must be a number greater than 0")
	}
	return nil
}
