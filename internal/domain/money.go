package domain

import (
	"math"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

var maxMinorUnits = decimal.NewFromInt(math.MaxInt64)

// FormatMoney renders a decimal major-unit amount in the given currency,
// e.g. 1234.5 USD -> "$1,234.50". Amounts are rounded to the currency's
// minor unit. Amounts that would round to zero or do not fit in int64
// minor units keep their full decimal form, e.g. "$0.00001".
// Unknown currencies fall back to the plain decimal string.
func FormatMoney(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return amount.String() + " " + currency
	}

	minor := amount.Shift(int32(cur.Fraction)).Round(0)
	if minor.Abs().GreaterThan(maxMinorUnits) || (minor.IsZero() && !amount.IsZero()) {
		return displayExact(amount, cur)
	}
	return money.New(minor.IntPart(), cur.Code).Display()
}

// displayExact lays out amount with the currency's grapheme and template
// the way go-money does, without rounding it to minor units.
func displayExact(amount decimal.Decimal, cur *money.Currency) string {
	s := strings.Replace(cur.Template, "1", amount.Abs().String(), 1)
	s = strings.Replace(s, "$", cur.Grapheme, 1)
	if amount.IsNegative() {
		return "-" + s
	}
	return s
}

// FormatUSD renders an amount in the base currency.
func FormatUSD(amount decimal.Decimal) string {
	return FormatMoney(amount, BaseCurrency)
}
