package crif

import (
	"strings"

	"github.com/shopspring/decimal"
)

// usdRates is the fixed conversion table to the USD reporting currency.
// Real market data would feed this in production; the engine only needs a
// stable, versionable snapshot.
var usdRates = map[string]decimal.Decimal{
	"USD": decimal.NewFromInt(1),
	"GBP": decimal.RequireFromString("1.25"),
	"EUR": decimal.RequireFromString("1.10"),
	"CHF": decimal.RequireFromString("1.15"),
	"CAD": decimal.RequireFromString("0.75"),
}

// ToUSD converts an amount to USD. Unknown currencies convert at 1:1 rather
// than failing the batch.
func ToUSD(amount decimal.Decimal, currency string) decimal.Decimal {
	rate, ok := usdRates[strings.ToUpper(currency)]
	if !ok {
		rate = decimal.NewFromInt(1)
	}
	return amount.Mul(rate).Round(8)
}
