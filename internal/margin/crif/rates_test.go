package crif

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestToUSD(t *testing.T) {
	amount := decimal.RequireFromString("1000")

	tests := []struct {
		currency string
		want     string
	}{
		{"USD", "1000"},
		{"GBP", "1250"},
		{"EUR", "1100"},
		{"CHF", "1150"},
		{"CAD", "750"},
	}
	for _, tt := range tests {
		t.Run(tt.currency, func(t *testing.T) {
			got := ToUSD(amount, tt.currency)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestToUSDUnknownCurrencyPassesThrough(t *testing.T) {
	amount := decimal.RequireFromString("500.25")
	got := ToUSD(amount, "JPY")
	assert.True(t, amount.Equal(got), "unknown currencies convert 1:1, got %s", got)
}

func TestToUSDPreservesSign(t *testing.T) {
	got := ToUSD(decimal.RequireFromString("-1000"), "GBP")
	assert.True(t, decimal.RequireFromString("-1250").Equal(got), "got %s", got)
}
