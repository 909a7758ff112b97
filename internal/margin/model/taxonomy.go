package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ProductClass is the top-level grouping of the risk taxonomy
type ProductClass string

const (
	ProductRatesFX   ProductClass = "RatesFX"
	ProductCredit    ProductClass = "Credit"
	ProductEquity    ProductClass = "Equity"
	ProductCommodity ProductClass = "Commodity"
)

// RiskClass is the coarse risk category a risk type rolls up to
type RiskClass string

const (
	RiskClassIR   RiskClass = "IR"
	RiskClassFX   RiskClass = "FX"
	RiskClassEQ   RiskClass = "EQ"
	RiskClassCO   RiskClass = "CO"
	RiskClassCRQ  RiskClass = "CR_Q"
	RiskClassCRNQ RiskClass = "CR_NQ"
)

// RiskTypeBaseCorr is emitted by the synthetic generator only; it is not part
// of the CRIF interchange risk-type set.
const RiskTypeBaseCorr = "Risk_BaseCorr"

// riskTypeToClass is the fixed closed mapping from interchange risk types to
// risk classes. A risk type outside this table rejects the record.
var riskTypeToClass = map[string]RiskClass{
	"Risk_IRCurve":       RiskClassIR,
	"Risk_IRVol":         RiskClassIR,
	"Risk_FX":            RiskClassFX,
	"Risk_FXVol":         RiskClassFX,
	"Risk_Equity":        RiskClassEQ,
	"Risk_EquityVol":     RiskClassEQ,
	"Risk_Commodity":     RiskClassCO,
	"Risk_CommodityVol":  RiskClassCO,
	"Risk_CreditQ":       RiskClassCRQ,
	"Risk_CreditNonQ":    RiskClassCRNQ,
}

// ClassifyRiskType resolves a risk type to its risk class.
func ClassifyRiskType(riskType string) (RiskClass, bool) {
	rc, ok := riskTypeToClass[riskType]
	return rc, ok
}

// ParseProductClass validates a product class value from external input.
func ParseProductClass(s string) (ProductClass, error) {
	switch ProductClass(s) {
	case ProductRatesFX, ProductCredit, ProductEquity, ProductCommodity:
		return ProductClass(s), nil
	default:
		return "", fmt.Errorf("invalid ProductClass: %s", s)
	}
}

// highYieldSpread is the 500bps threshold (as a decimal spread) at or above
// which a credit exposure routes to the high-yield bucket.
var highYieldSpread = decimal.NewFromFloat(0.0500)

// Credit bucket identifiers: 1-12 investment grade by sector, 13 high yield,
// 10 other/unclassified.
const (
	BucketFinancials = "2"
	BucketConsumer   = "4"
	BucketTMT        = "5"
	BucketEnergy     = "6"
	BucketOther      = "10"
	BucketHighYield  = "13"
)

// sectorGroup pairs a bucket with the reference-entity keywords that map to
// it. Order matters: the first matching group wins.
type sectorGroup struct {
	bucket   string
	keywords []string
}

var sectorGroups = []sectorGroup{
	{BucketTMT, []string{"AAPL", "MSFT", "GOOGL", "AMZN", "META", "NVDA", "TSLA"}},
	{BucketFinancials, []string{"JPM", "GS", "MS", "BAC", "C", "WFC", "BNP", "DB", "UBS"}},
	{BucketEnergy, []string{"XOM", "CVX", "BP", "SHELL"}},
	{BucketConsumer, []string{"WMT", "TGT", "HD", "MCD", "SBUX", "NKE"}},
}

// CreditBucket classifies a credit exposure into a bucket. Spreads at or
// above 500bps go to the high-yield bucket regardless of sector; below that
// the reference entity is matched case-insensitively against the ordered
// sector keyword groups, defaulting to the "other" bucket.
func CreditBucket(referenceEntity string, spread decimal.Decimal) string {
	if spread.GreaterThanOrEqual(highYieldSpread) {
		return BucketHighYield
	}
	entity := strings.ToUpper(referenceEntity)
	for _, g := range sectorGroups {
		for _, kw := range g.keywords {
			if strings.Contains(entity, kw) {
				return g.bucket
			}
		}
	}
	return BucketOther
}

// TenorLabel rounds years-to-maturity to the nearest standard tenor using
// upper-bound thresholds over the {1,2,3,5,10,15,20,30}y ladder.
func TenorLabel(yearsToMaturity float64) string {
	switch {
	case yearsToMaturity <= 1.5:
		return "1y"
	case yearsToMaturity <= 2.5:
		return "2y"
	case yearsToMaturity <= 4.0:
		return "3y"
	case yearsToMaturity <= 7.5:
		return "5y"
	case yearsToMaturity <= 12.5:
		return "10y"
	case yearsToMaturity <= 17.5:
		return "15y"
	case yearsToMaturity <= 25.0:
		return "20y"
	default:
		return "30y"
	}
}
